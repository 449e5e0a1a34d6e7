package fleet

import (
	"hash/fnv"
	"strings"

	"github.com/Strob0t/RelayForge/internal/domain/incident"
)

// lookup resolves a dotted path such as "customer.id" in a task context.
func lookup(input map[string]any, path string) (any, bool) {
	var cur any = input
	for part := range strings.SplitSeq(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// stringAt returns the first non-empty string found under paths, or fallback.
func stringAt(input map[string]any, fallback string, paths ...string) string {
	for _, p := range paths {
		if v, ok := lookup(input, p); ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return fallback
}

// numberAt returns the first number found under paths, or fallback.
func numberAt(input map[string]any, fallback float64, paths ...string) float64 {
	for _, p := range paths {
		if v, ok := lookup(input, p); ok {
			if n, ok := incident.Number(v); ok {
				return n
			}
		}
	}
	return fallback
}

// code derives a stable six digit reference from seed.
func code(seed string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return 100000 + h.Sum32()%900000
}
