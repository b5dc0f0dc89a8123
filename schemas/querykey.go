package schemas

import (
	"sort"

	"github.com/bytedance/sonic"
	"github.com/maximhq/datahook/pool"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// objectScratch holds the key slice and key->value map canonicalizeValue
// needs while sorting one JSON object's keys. Query keys are recomputed
// on every read/write/queue dispatch, so pooling this scratch state
// avoids a slice and map allocation per object level on the hottest
// per-call path in the module.
type objectScratch struct {
	keys     []string
	children map[string]gjson.Result
}

var scratchPool = pool.New("querykey-object-scratch", func() *objectScratch {
	return &objectScratch{children: make(map[string]gjson.Result)}
})

func (s *objectScratch) reset() {
	s.keys = s.keys[:0]
	for k := range s.children {
		delete(s.children, k)
	}
}

// RequestDescriptor is the {path, method, options} triple the typed
// client proxy hands to the core (spec.md §6). Options is an arbitrary
// JSON-able value; controllers pass their per-call RequestOptions
// unchanged, so every field of it takes part in the key.
type RequestDescriptor struct {
	Path    string
	Method  Method
	Options any
}

// CreateQueryKey produces the canonical, deterministic identifier for a
// request: semantically equal requests (same path/method/options,
// regardless of map key insertion order) MUST hash to byte-equal keys
// (spec.md §3, P1). It builds a plain map, marshals it once with sonic
// for speed, then re-walks the result with gjson to recursively sort
// every object's keys and rebuilds the canonical form with sjson —
// avoiding a hand-rolled recursive map-sorter in favor of the teacher's
// own JSON-tooling stack (gjson/sjson are already core dependencies;
// sonic covers the initial encode of the arbitrary Options value).
func CreateQueryKey(req RequestDescriptor) (string, error) {
	raw, err := sonic.Marshal(map[string]any{
		"path":    req.Path,
		"method":  string(req.Method),
		"options": req.Options,
	})
	if err != nil {
		return "", err
	}
	return canonicalize(string(raw))
}

// canonicalize recursively sorts the keys of every JSON object found in
// src, producing a byte-stable serialization regardless of input key
// order. Arrays are walked in place (order is semantically meaningful
// for arrays and is preserved).
func canonicalize(src string) (string, error) {
	result := gjson.Parse(src)
	return canonicalizeValue(result)
}

func canonicalizeValue(v gjson.Result) (string, error) {
	switch {
	case v.IsObject():
		s := scratchPool.Get()
		defer func() { s.reset(); scratchPool.Put(s) }()
		v.ForEach(func(key, value gjson.Result) bool {
			k := key.String()
			s.keys = append(s.keys, k)
			s.children[k] = value
			return true
		})
		sort.Strings(s.keys)

		out := "{}"
		var err error
		for _, k := range s.keys {
			childCanonical, cerr := canonicalizeValue(s.children[k])
			if cerr != nil {
				return "", cerr
			}
			out, err = sjson.SetRaw(out, escapePathKey(k), childCanonical)
			if err != nil {
				return "", err
			}
		}
		return out, nil

	case v.IsArray():
		out := "[]"
		var err error
		v.ForEach(func(_, value gjson.Result) bool {
			var childCanonical string
			childCanonical, err = canonicalizeValue(value)
			if err != nil {
				return false
			}
			// "-1" is sjson's append-to-array sentinel; using it instead of a
			// numeric index keeps elements in their original (meaningful) order
			// without relying on sjson's index-padding behavior on a growing array.
			out, err = sjson.SetRaw(out, "-1", childCanonical)
			return err == nil
		})
		if err != nil {
			return "", err
		}
		return out, nil

	default:
		return v.Raw, nil
	}
}

// escapePathKey escapes sjson path metacharacters (".", "*", "?") in an
// object key so arbitrary field names round-trip through SetRaw paths.
func escapePathKey(k string) string {
	out := make([]byte, 0, len(k))
	for i := 0; i < len(k); i++ {
		c := k[i]
		if c == '.' || c == '*' || c == '?' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}

// SelfTagFromQueryKey derives the self-tag used by the optimistic plugin
// for exact-target lookups: the "path" field of a canonical query key, or
// nil if the key does not parse as the expected JSON shape (spec.md's
// Design Notes: "opaque keys carry no selfTag, which is safe").
func SelfTagFromQueryKey(key string) *string {
	if !gjson.Valid(key) {
		return nil
	}
	path := gjson.Get(key, "path")
	if !path.Exists() || path.Type != gjson.String {
		return nil
	}
	return Ptr(path.String())
}

// MethodFromQueryKey extracts the method recorded in a canonical query
// key, used by the optimistic plugin to match targets by method.
func MethodFromQueryKey(key string) (Method, bool) {
	if !gjson.Valid(key) {
		return "", false
	}
	m := gjson.Get(key, "method")
	if !m.Exists() {
		return "", false
	}
	return Method(m.String()), true
}

// DecodeOptionsFromQueryKey recovers the "options" value encoded into a
// canonical query key, for the optimistic plugin's WHERE predicate
// (evaluated "against the request decoded from the key", spec.md §4.7).
func DecodeOptionsFromQueryKey(key string) (any, bool) {
	if !gjson.Valid(key) {
		return nil, false
	}
	opts := gjson.Get(key, "options")
	if !opts.Exists() {
		return nil, false
	}
	var decoded any
	if err := sonic.Unmarshal([]byte(opts.Raw), &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}
