package config

import "testing"

func TestDevProfileIsValid(t *testing.T) {
	p := writeConfig(t, DevProfile())
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("DevProfile should produce valid config: %v", err)
	}
	if cfg.Enforcement.IsFailClosed() {
		t.Error("dev profile should fail open")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("dev logging format = %s, want text", cfg.Logging.Format)
	}
}

func TestProdProfileIsValid(t *testing.T) {
	p := writeConfig(t, ProdProfile())
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("ProdProfile should produce valid config: %v", err)
	}
	if !cfg.Enforcement.IsFailClosed() {
		t.Error("prod profile should fail closed")
	}
	if len(cfg.Enforcement.Routes) == 0 {
		t.Error("prod profile should include an example route")
	}
}
