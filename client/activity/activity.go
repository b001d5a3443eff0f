package activity

import "encoding/json"

// Activity is an outgoing activity, built locally and posted to an outbox.
// Reference properties take a Ref, a plain id string, or an Object.
type Activity struct {
	Context    any               `json:"@context,omitempty"`
	Type       string            `json:"type"`
	ID         string            `json:"id,omitempty"`
	Actor      any               `json:"actor,omitempty"`
	Object     any               `json:"object,omitempty"`
	Target     any               `json:"target,omitempty"`
	Origin     any               `json:"origin,omitempty"`
	Location   any               `json:"location,omitempty"`
	Content    string            `json:"content,omitempty"`
	ContentMap map[string]string `json:"contentMap,omitempty"`
	SummaryMap map[string]string `json:"summaryMap,omitempty"`
	To         []string          `json:"to,omitempty"`
	CC         []string          `json:"cc,omitempty"`
}

// Ref is a denormalized reference to another object,
// enough to display it without fetching.
type Ref struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Wire converts the activity to its generic wire form
func (a Activity) Wire() Object {
	b, err := json.Marshal(a)
	if err != nil {
		return nil
	}
	o, err := NewObject(b)
	if err != nil {
		return nil
	}
	return o
}
