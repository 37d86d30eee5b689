package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// FallbackLocation is returned whenever a reverse lookup cannot produce a
// usable name. Geocoding failures never surface as errors; the label is
// display-only.
const FallbackLocation = "A wonderful location"

// Place is one forward-geocoding candidate.
type Place struct {
	DisplayName string  `json:"display_name"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// Client wraps reverse/forward lookups against a Nominatim-style service.
// It is stateless; one instance may be shared.
type Client struct {
	BaseURL  string
	Language string
	HTTP     *http.Client
}

// New builds a client for the given service base URL and language.
func New(baseURL, language string) *Client {
	if language == "" {
		language = "en"
	}
	return &Client{
		BaseURL:  baseURL,
		Language: language,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}
}

type reverseResponse struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

// Reverse names a coordinate. It prefers a point of interest plus city,
// then city plus country, then the raw display name, and falls back to
// FallbackLocation on any failure.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) string {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("accept-language", c.Language)
	q.Set("zoom", "18")

	var data reverseResponse
	if err := c.get(ctx, "/reverse", q, &data); err != nil {
		return FallbackLocation
	}

	if len(data.Address) == 0 {
		if data.DisplayName != "" {
			return data.DisplayName
		}
		return FallbackLocation
	}

	poi := firstOf(data.Address, "tourism", "amenity", "shop", "historic", "public_building")
	if poi == "" {
		poi = data.Name
	}
	city := firstOf(data.Address, "city", "town", "village")
	country := data.Address["country"]

	if poi != "" && city != "" {
		return fmt.Sprintf("%s, %s", poi, city)
	}
	if city != "" && country != "" {
		return fmt.Sprintf("%s, %s", city, country)
	}
	if data.DisplayName != "" {
		return data.DisplayName
	}
	return FallbackLocation
}

type searchResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Search resolves a free-text query to coordinate candidates. Failures
// yield an empty list, never an error.
func (c *Client) Search(ctx context.Context, query string, limit int) []Place {
	if limit <= 0 {
		limit = 5
	}
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("q", query)
	q.Set("accept-language", c.Language)
	q.Set("limit", strconv.Itoa(limit))

	var results []searchResult
	if err := c.get(ctx, "/search", q, &results); err != nil {
		return nil
	}

	places := make([]Place, 0, len(results))
	for _, r := range results {
		lat, err1 := strconv.ParseFloat(r.Lat, 64)
		lng, err2 := strconv.ParseFloat(r.Lon, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		places = append(places, Place{DisplayName: r.DisplayName, Lat: lat, Lng: lng})
	}
	return places
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geocode status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func firstOf(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
