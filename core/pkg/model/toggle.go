package model

// Segment is a single targeting constraint attached to a toggle.
type Segment struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ToggleDefinition is one entry of a feature manifest. Segments sharing a key
// are alternatives; distinct keys must all be satisfied.
type ToggleDefinition struct {
	Name     string    `json:"name"`
	Slug     string    `json:"slug"`
	Enabled  bool      `json:"isEnabled"`
	Segments []Segment `json:"segments"`
}

// Context carries the caller supplied evaluation attributes. Only string
// values take part in segment matching.
type Context = map[string]any

// ContextValue returns the string form of v and whether it is usable for
// matching. Nil, non-string and nil *string values are absent.
func ContextValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case *string:
		if s == nil {
			return "", false
		}
		return *s, true
	default:
		return "", false
	}
}

// LowerASCII maps A-Z to a-z and leaves every other byte untouched.
func LowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if 'A' <= s[i] && s[i] <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				b[j] = lowerASCII(b[j])
			}
			return string(b)
		}
	}
	return s
}

// EqualFoldASCII compares a and b ignoring ASCII case only. Non-ASCII bytes
// must match exactly.
func EqualFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if lowerASCII(a[i]) != lowerASCII(b[i]) {
			return false
		}
	}
	return true
}

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
