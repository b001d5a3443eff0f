// Package summary renders short HTML descriptions of geosocial activities
package summary

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/tkrehbiel/checkin/client/activity"
)

// Default names for entities without one
const (
	Someone   = "(someone)"
	Somewhere = "(somewhere)"
	Something = "(something)"

	Unknown = "(Unknown activity)"
)

// HTMLTypes are the media types preferred for a url property
var HTMLTypes = []string{"text/html"}

// ImageTypes are the media types preferred for an icon property
var ImageTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/svg+xml",
	"image/webp",
	"image/avif",
	"image/vnd.microsoft.icon",
}

var (
	ugc    = bluemonday.UGCPolicy()
	strict = bluemonday.StrictPolicy()

	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", `"`, "&quot;", "'", "&#39;", "<", "&lt;", ">", "&gt;")
)

// EscapeText escapes a string for use as HTML element content
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// EscapeAttr escapes a string for use inside a quoted HTML attribute
func EscapeAttr(s string) string {
	return attrEscaper.Replace(s)
}

// URL finds a link in a property of the object.
// A string value is the link. An array yields the href of the first Link
// whose media type starts with one of the given types, else the first
// element. A map yields its href.
func URL(obj activity.Object, prop string, mediaTypes []string) string {
	if obj == nil {
		return ""
	}
	switch v := obj[prop].(type) {
	case string:
		return v
	case []any:
		for _, elem := range v {
			link, ok := activity.AsObject(elem)
			if !ok || link.Type() != activity.LinkType {
				continue
			}
			mt := link.String(activity.MediaTypeProperty)
			if mt == "" {
				continue
			}
			for _, t := range mediaTypes {
				if strings.HasPrefix(mt, t) {
					return link.String(activity.HRefProperty)
				}
			}
		}
		if len(v) > 0 {
			return href(v[0])
		}
	case map[string]any:
		return href(v)
	case activity.Object:
		return href(v)
	}
	return ""
}

func href(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if o, ok := activity.AsObject(v); ok {
		if h := o.String(activity.HRefProperty); h != "" {
			return h
		}
		// Image and Document objects carry a url instead
		return o.String(activity.URLProperty)
	}
	return ""
}

// Icon finds an image link in the icon property
func Icon(obj activity.Object) string {
	return URL(obj, activity.IconProperty, ImageTypes)
}

// Part renders one entity of a summary, linked when it has a url.
// References that are not embedded objects get the default name.
func Part(ref any, def string) string {
	obj, _ := activity.AsObject(ref)
	name := def
	if n := obj.String(activity.NameProperty); n != "" {
		name = n
	}
	if u := URL(obj, activity.URLProperty, HTMLTypes); u != "" {
		return fmt.Sprintf(`<a href="%s">%s</a>`, EscapeAttr(u), EscapeText(name))
	}
	return EscapeText(name)
}

// Make builds an HTML summary of a geosocial activity from its embedded parts
func Make(act activity.Object) string {
	actor := Part(act[activity.ActorProperty], Someone)
	switch act.Type() {
	case activity.ArriveType:
		return fmt.Sprintf("%s arrived at %s", actor, Part(act[activity.LocationProperty], Somewhere))
	case activity.LeaveType:
		return fmt.Sprintf("%s left %s", actor, Part(act[activity.ObjectProperty], Somewhere))
	case activity.TravelType:
		return fmt.Sprintf("%s travelled from %s to %s", actor,
			Part(act[activity.OriginProperty], Somewhere),
			Part(act[activity.TargetProperty], Somewhere))
	}
	return Unknown
}

// Display is the HTML to show for an activity: its own summary,
// else its English summaryMap entry, else a generated one.
// Summaries written by remote servers are sanitized.
func Display(act activity.Object) string {
	if s := act.String(activity.SummaryProperty); s != "" {
		return ugc.Sanitize(s)
	}
	if m, ok := activity.AsObject(act[activity.SummaryMapProperty]); ok {
		if s := m.String("en"); s != "" {
			return ugc.Sanitize(s)
		}
	}
	return Make(act)
}

// Text reduces an HTML fragment to plain text for terminals
func Text(fragment string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(fragment)))
}
