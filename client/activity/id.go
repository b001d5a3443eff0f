package activity

// ToID reduces a reference to an identifier.
// JSON-LD values can be a plain string or an expansive object, so
// a string is taken as-is and an object contributes its string id.
// Anything else, arrays included, has no single identifier and returns "".
func ToID(ref any) string {
	switch t := ref.(type) {
	case string:
		return t
	case Object:
		return t.ID()
	case map[string]any:
		if s, ok := t[IDProperty].(string); ok {
			return s
		}
	}
	return ""
}

// AsObject returns the reference as an Object if it is a JSON object
func AsObject(ref any) (Object, bool) {
	switch t := ref.(type) {
	case Object:
		return t, t != nil
	case map[string]any:
		return Object(t), t != nil
	}
	return nil, false
}
