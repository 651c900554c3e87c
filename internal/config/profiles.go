package config

// DevProfile returns a starter configuration for local development:
// verbose text logs, fail-open so a missing directory does not block
// experimentation, and the in-memory decision cache.
func DevProfile() string {
	return `listen:
  host: 127.0.0.1
  port: 8080

directory:
  base_url: http://localhost:9000
  timeout: 5s
  retry_attempts: 3

cache:
  store: memory
  passport_ttl: 60s
  policy_ttl: 60s
  decision_ttl: 60s

enforcement:
  fail_closed: false

logging:
  level: debug
  format: text
  output: stdout
`
}

// ProdProfile returns a hardened starter configuration: fail-closed,
// JSON logs, and placeholders the operator must fill in.
func ProdProfile() string {
	return `listen:
  host: 0.0.0.0
  port: 8080

directory:
  base_url: https://directory.example.com   # REQUIRED: your passport directory
  api_key: ""                               # REQUIRED: directory API key
  timeout: 5s
  retry_attempts: 3
  breaker_failures: 5

cache:
  store: memory          # set to "redis" and fill redis_url for multi-instance deployments
  # redis_url: redis://localhost:6379/0
  passport_ttl: 60s
  policy_ttl: 60s
  decision_ttl: 60s
  max_entries: 10000

identity:
  header: X-Agent-Passport-Id
  fallback_header: X-Agent-Id
  # jwt:
  #   issuer: https://issuer.example.com
  #   audience: passgate
  #   jwks_url: https://issuer.example.com/.well-known/jwks.json

enforcement:
  fail_closed: true
  deny_unmapped_routes: false
  routes:
    - prefix: /refund
      capabilities: [finance.payment.refund]
      min_assurance: L2

logging:
  level: info
  format: json
  output: stdout
  audit:
    sampling_rate: 1.0
    error_sampling_rate: 1.0

shutdown:
  timeout: 30s

reload:
  enabled: true
  watch_file: true
  debounce: 2s
`
}
