package utils

// ToStringSlice converts a decoded JSON claim into a string slice. Claims arrive
// either as []any (encoding/json) or []string (already typed); a single string is
// treated as a one element slice.
func ToStringSlice(v any) []string {
	switch typed := v.(type) {
	case nil:
		return nil
	case string:
		return []string{typed}
	case []string:
		return append([]string(nil), typed...)
	case []any:
		stringSlice := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				stringSlice = append(stringSlice, s)
			}
		}
		return stringSlice
	}
	return nil
}

// FirstNonEmpty returns the first argument that is not the empty string.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
