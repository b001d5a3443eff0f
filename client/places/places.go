// Package places finds named places near a coordinate
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/karlseguin/ccache/v3"
	"github.com/tkrehbiel/checkin/client/activity"
	"github.com/tkrehbiel/checkin/client/telemetry"
)

const (
	DefaultURL = "https://places.pub/search"

	earthRadius  = 6_371_000.0 // meters
	searchRadius = 100.0       // meters
)

// BBox is the box around a point, as min longitude, min latitude,
// max longitude, max latitude, rounded to 5 decimal places
func BBox(lat float64, lon float64, meters float64) [4]float64 {
	deltaLat := meters / earthRadius * 180 / math.Pi
	deltaLon := deltaLat / math.Cos(lat*math.Pi/180)
	return [4]float64{
		round5(lon - deltaLon),
		round5(lat - deltaLat),
		round5(lon + deltaLon),
		round5(lat + deltaLat),
	}
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

// Searcher queries a places service, remembering recent answers
type Searcher struct {
	url   string
	ttl   time.Duration
	http  *http.Client
	cache *ccache.Cache[[]activity.Object]
}

func New(searchURL string, ttl time.Duration, httpClient *http.Client) *Searcher {
	if searchURL == "" {
		searchURL = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Searcher{
		url:   searchURL,
		ttl:   ttl,
		http:  httpClient,
		cache: ccache.New(ccache.Configure[[]activity.Object]().MaxSize(500)),
	}
}

func (s *Searcher) Close() {
	s.cache.Stop()
}

// Search returns the named places near a point
func (s *Searcher) Search(ctx context.Context, lat float64, lon float64) ([]activity.Object, error) {
	key := fmt.Sprintf("%.5f,%.5f", lat, lon)
	if item := s.cache.Get(key); item != nil && !item.Expired() {
		telemetry.Increment("places_cache_hits", 1)
		return item.Value(), nil
	}

	u, err := url.Parse(s.url)
	if err != nil {
		return nil, fmt.Errorf("parsing places url: %w", err)
	}
	box := BBox(lat, lon, searchRadius)
	coords := make([]string, len(box))
	for i, v := range box {
		coords[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	bbox := "bbox=" + strings.Join(coords, ",")
	if u.RawQuery != "" {
		u.RawQuery += "&" + bbox
	} else {
		u.RawQuery = bbox
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Accept", activity.Accept)
	resp, err := s.http.Do(r)
	if err != nil {
		return nil, fmt.Errorf("searching places: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("searching places: status %d", resp.StatusCode)
	}
	var collection struct {
		Items        []activity.Object `json:"items"`
		OrderedItems []activity.Object `json:"orderedItems"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&collection); err != nil {
		return nil, fmt.Errorf("decoding places: %w", err)
	}
	items := collection.Items
	if items == nil {
		items = collection.OrderedItems
	}
	found := make([]activity.Object, 0, len(items))
	for _, p := range items {
		if p.String(activity.NameProperty) != "" {
			found = append(found, p)
		}
	}
	if s.ttl > 0 {
		s.cache.Set(key, found, s.ttl)
	}
	telemetry.Trace("found %d places near %s", len(found), key)
	return found, nil
}
