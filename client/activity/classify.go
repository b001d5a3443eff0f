package activity

// Classification is the verdict on whether an object is an Activity
type Classification int

const (
	NotActivity       Classification = iota
	KnownActivity                    // declared type is a known Activity type
	DuckTypedActivity                // unknown type, but has activity-shaped properties
)

func (c Classification) String() string {
	switch c {
	case KnownActivity:
		return "activity"
	case DuckTypedActivity:
		return "duck-typed activity"
	}
	return "not an activity"
}

var activityTypes = map[string]bool{
	"Activity":             true,
	"IntransitiveActivity": true,
	"Accept":               true,
	"Add":                  true,
	"Announce":             true,
	ArriveType:             true,
	"Block":                true,
	"Create":               true,
	"Delete":               true,
	"Dislike":              true,
	"Flag":                 true,
	"Follow":               true,
	"Ignore":               true,
	"Invite":               true,
	"Join":                 true,
	LeaveType:              true,
	"Like":                 true,
	"Listen":               true,
	"Move":                 true,
	"Offer":                true,
	"Question":             true,
	"Reject":               true,
	"Read":                 true,
	"Remove":               true,
	"TentativeReject":      true,
	"TentativeAccept":      true,
	TravelType:             true,
	"Undo":                 true,
	"Update":               true,
	"View":                 true,
}

var nonActivityTypes = map[string]bool{
	"Application":             true,
	"Group":                   true,
	"Organization":            true,
	PersonType:                true,
	"Service":                 true,
	"Article":                 true,
	"Audio":                   true,
	"Document":                true,
	"Event":                   true,
	"Image":                   true,
	"Note":                    true,
	"Page":                    true,
	PlaceType:                 true,
	"Profile":                 true,
	"Relationship":            true,
	"Tombstone":               true,
	"Video":                   true,
	"Mention":                 true,
	CollectionType:            true,
	OrderedCollectionType:     true,
	CollectionPageType:        true,
	OrderedCollectionPageType: true,
	LinkType:                  true,
}

// activityProperties are the relations only activities carry
var activityProperties = []string{
	ActorProperty,
	ObjectProperty,
	TargetProperty,
	ResultProperty,
	OriginProperty,
	InstrumentProperty,
}

// Classify decides whether an object is an Activity.
// Known type names win, in either direction. An object whose types are
// all unknown is an activity if it has at least one activity relation,
// which covers servers that invent their own activity types.
func Classify(obj Object) Classification {
	types := obj.Types()
	if len(types) == 0 {
		return NotActivity
	}
	for _, t := range types {
		if activityTypes[t] {
			return KnownActivity
		}
	}
	for _, t := range types {
		if nonActivityTypes[t] {
			return NotActivity
		}
	}
	for _, p := range activityProperties {
		if _, ok := obj[p]; ok {
			return DuckTypedActivity
		}
	}
	return NotActivity
}

func IsActivity(obj Object) bool {
	return Classify(obj) != NotActivity
}

// IsGeo reports whether the object is one of the geosocial activity types
func IsGeo(obj Object) bool {
	switch obj.Type() {
	case ArriveType, LeaveType, TravelType:
		return true
	}
	return false
}

// RequiredFields lists the properties a geosocial activity needs
// embedded before it can be displayed without further fetching.
func RequiredFields(obj Object) []string {
	required := []string{IDProperty, TypeProperty, PublishedProperty, ActorProperty}
	switch obj.Type() {
	case ArriveType:
		required = append(required, LocationProperty)
	case LeaveType:
		required = append(required, ObjectProperty)
	case TravelType:
		required = append(required, TargetProperty, OriginProperty)
	}
	return required
}
