package decision

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint derives a stable 64-bit digest of the request context so two
// requests differing only in map iteration order share a cache key. Keys
// are serialized in sorted order at every nesting level.
func Fingerprint(context map[string]any) string {
	if len(context) == 0 {
		return "0"
	}
	var b strings.Builder
	writeCanonical(&b, context)
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

// CacheKey builds the memoization key for one decision. The digest folds
// in every evaluator input the request carries: the path, the tool/bridge
// header values, and the context fingerprint. An allow cached for one
// request is never replayed for a stricter one.
func CacheKey(agentID, policyID, path, mcpServer, mcpTool string, context map[string]any) string {
	var b strings.Builder
	b.WriteString(path)
	b.WriteByte(0)
	b.WriteString(mcpServer)
	b.WriteByte(0)
	b.WriteString(mcpTool)
	b.WriteByte(0)
	b.WriteString(Fingerprint(context))
	digest := strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
	return fmt.Sprintf("decision:%s:%s:%s", policyID, agentID, digest)
}

func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		// Scalars serialize identically regardless of position.
		raw, err := json.Marshal(val)
		if err != nil {
			b.WriteString(fmt.Sprintf("%v", val))
			return
		}
		b.Write(raw)
	}
}
