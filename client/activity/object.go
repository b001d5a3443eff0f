package activity

import (
	"encoding/json"
	"fmt"
	"time"
)

// Object is a decoded JSON-LD object as it came off the wire.
// Property values stay polymorphic: strings, maps, arrays, numbers.
type Object map[string]any

// NewObject decodes JSON bytes, which must hold a JSON object
func NewObject(b []byte) (Object, error) {
	var o Object
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("unmarshaling object json: %w", err)
	}
	if o == nil {
		return nil, fmt.Errorf("json is not an object")
	}
	return o, nil
}

// JSON encodes the object, returning nil if that's impossible
func (o Object) JSON() []byte {
	b, err := json.Marshal(o)
	if err != nil {
		return nil
	}
	return b
}

func (o Object) ID() string {
	if s, ok := o[IDProperty].(string); ok {
		return s
	}
	return ""
}

// Type returns the type when it is a single string
func (o Object) Type() string {
	if s, ok := o[TypeProperty].(string); ok {
		return s
	}
	return ""
}

// Types returns all the type names, whether type is a string or an array
func (o Object) Types() []string {
	switch t := o[TypeProperty].(type) {
	case string:
		return []string{t}
	case []any:
		types := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		return types
	case []string:
		return t
	}
	return nil
}

// String returns a property if it is a string
func (o Object) String(prop string) string {
	if s, ok := o[prop].(string); ok {
		return s
	}
	return ""
}

// Has reports whether every property is present, whatever its value
func (o Object) Has(props ...string) bool {
	for _, p := range props {
		if _, ok := o[p]; !ok {
			return false
		}
	}
	return true
}

// Timestamp is the updated time, else the published time.
// Zero if neither parses.
func (o Object) Timestamp() time.Time {
	for _, prop := range []string{UpdatedProperty, PublishedProperty} {
		if s, ok := o[prop].(string); ok && s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t
			}
			return time.Time{}
		}
	}
	return time.Time{}
}
