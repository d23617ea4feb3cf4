package cachesink

import "github.com/calvinalkan/bucketcache/pkg/bucketcache"

// HashFieldsForTesting exposes the per-table Redis hash layout.
func HashFieldsForTesting(ts bucketcache.TableStats) map[string]any {
	fields := hashFields(ts)
	out := make(map[string]any, len(fields)/2)

	for i := 0; i+1 < len(fields); i += 2 {
		name, _ := fields[i].(string)
		out[name] = fields[i+1]
	}

	return out
}
