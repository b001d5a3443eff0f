package activity

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Actor is the typed view of an actor document, limited to what the client uses
type Actor struct {
	ID                string    `mapstructure:"id"`
	Type              string    `mapstructure:"type"`
	Name              string    `mapstructure:"name"`
	PreferredUsername string    `mapstructure:"preferredUsername"`
	URL               any       `mapstructure:"url"`
	Icon              any       `mapstructure:"icon"`
	Inbox             string    `mapstructure:"inbox"`
	Outbox            string    `mapstructure:"outbox"`
	Followers         string    `mapstructure:"followers"`
	Endpoints         Endpoints `mapstructure:"endpoints"`
}

type Endpoints struct {
	OAuthAuthorizationEndpoint string `mapstructure:"oauthAuthorizationEndpoint"`
	OAuthTokenEndpoint         string `mapstructure:"oauthTokenEndpoint"`
	ProxyURL                   string `mapstructure:"proxyUrl"`
}

// DecodeActor maps a generic actor object onto an Actor.
// Unknown properties are ignored.
func DecodeActor(obj Object) (Actor, error) {
	var a Actor
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: refToID,
		Result:     &a,
	})
	if err != nil {
		return Actor{}, err
	}
	if err := decoder.Decode(map[string]any(obj)); err != nil {
		return Actor{}, fmt.Errorf("decoding actor %s: %w", obj.ID(), err)
	}
	return a, nil
}

// refToID reduces an embedded object or array to its id wherever a
// string is expected, so inbox, outbox and followers may be embedded
func refToID(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	switch data.(type) {
	case map[string]any, []any:
		return ToID(data), nil
	}
	return data, nil
}

// DisplayName is the name, else the preferred username, else the id
func (a Actor) DisplayName() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.PreferredUsername != "":
		return a.PreferredUsername
	}
	return a.ID
}
