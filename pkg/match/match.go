// Package match holds the wildcard matching used for data exclusions and
// settings lookups.
package match

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/ryanuber/go-glob"
)

// Wildcard reports whether value matches pattern, where '*' matches any run
// of characters. Matching is case-insensitive.
func Wildcard(pattern, value string) bool {
	return glob.Glob(strings.ToLower(pattern), strings.ToLower(value))
}

// Any reports whether value matches at least one of patterns.
func Any(patterns []string, value string) bool {
	for _, p := range patterns {
		if Wildcard(p, value) {
			return true
		}
	}
	return false
}

// Lookup finds the setting for key: an exact match wins, otherwise keys are
// tried longest first (alphabetically among equal lengths) as wildcard
// patterns.
func Lookup(settings map[string]string, key string) (string, bool) {
	if v, ok := settings[key]; ok {
		return v, true
	}

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		if Wildcard(k, key) {
			return settings[k], true
		}
	}
	return "", false
}

// Prune converts value to its JSON form and removes every object property
// whose name matches one of exclusions. Nesting deeper than maxDepth is
// cut off; maxDepth <= 0 means unlimited. Values that cannot be encoded are
// returned as nil.
func Prune(value interface{}, exclusions []string, maxDepth int) interface{} {
	body, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	// Numbers stay json.Number so integers beyond 2^53 survive.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil
	}
	return prune(generic, exclusions, maxDepth, 1)
}

func prune(value interface{}, exclusions []string, maxDepth, depth int) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		if maxDepth > 0 && depth > maxDepth {
			return nil
		}
		out := make(map[string]interface{}, len(v))
		for k, child := range v {
			if Any(exclusions, k) {
				continue
			}
			out[k] = prune(child, exclusions, maxDepth, depth+1)
		}
		return out
	case []interface{}:
		if maxDepth > 0 && depth > maxDepth {
			return nil
		}
		out := make([]interface{}, len(v))
		for i, child := range v {
			out[i] = prune(child, exclusions, maxDepth, depth+1)
		}
		return out
	default:
		return v
	}
}
