package activity

// ActivityPub and ActivityStreams vocabulary

const (
	IDProperty         = "id"
	TypeProperty       = "type"
	PublishedProperty  = "published"
	UpdatedProperty    = "updated"
	ActorProperty      = "actor"
	ObjectProperty     = "object"
	TargetProperty     = "target"
	OriginProperty     = "origin"
	ResultProperty     = "result"
	InstrumentProperty = "instrument"
	LocationProperty   = "location"
	NameProperty       = "name"
	URLProperty        = "url"
	IconProperty       = "icon"
	HRefProperty       = "href"
	MediaTypeProperty  = "mediaType"
	SummaryProperty    = "summary"
	SummaryMapProperty = "summaryMap"
	ItemsProperty      = "items"
	OrderedProperty    = "orderedItems"
	FirstProperty      = "first"
	NextProperty       = "next"
	InboxProperty      = "inbox"
	OutboxProperty     = "outbox"
)

const (
	Context       = "https://www.w3.org/ns/activitystreams"
	PublicAddress = "https://www.w3.org/ns/activitystreams#Public"
	ContentType   = "application/activity+json"
	ContentTypeLD = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

	// Accept header for fetching objects, in order of preference
	Accept = ContentType + ", " + ContentTypeLD + ", application/json"
)

// ActivityPub object types
const (
	PersonType                = "Person"
	PlaceType                 = "Place"
	LinkType                  = "Link"
	CollectionType            = "Collection"
	OrderedCollectionType     = "OrderedCollection"
	CollectionPageType        = "CollectionPage"
	OrderedCollectionPageType = "OrderedCollectionPage"
)

// Geosocial activity types
const (
	ArriveType = "Arrive"
	LeaveType  = "Leave"
	TravelType = "Travel"
)

const (
	// ActivityPub time format string
	TimeFormat = "2006-01-02T15:04:05Z"
)
