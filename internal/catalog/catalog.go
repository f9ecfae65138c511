// Package catalog fetches the bulk scene index and narrows it down to the
// acquisitions worth downloading.
package catalog

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/clearsat/atmcorr/internal/logging"
	"github.com/clearsat/atmcorr/internal/properties"
)

// Scene is one row of the gzipped index CSV published alongside the
// imagery bucket.
type Scene struct {
	SceneID            string  `csv:"SCENE_ID"`
	ProductID          string  `csv:"PRODUCT_ID"`
	Spacecraft         string  `csv:"SPACECRAFT_ID"`
	Sensor             string  `csv:"SENSOR_ID"`
	DateAcquired       string  `csv:"DATE_ACQUIRED"`
	CollectionNumber   string  `csv:"COLLECTION_NUMBER"`
	CollectionCategory string  `csv:"COLLECTION_CATEGORY"`
	SensingTime        string  `csv:"SENSING_TIME"`
	DataType           string  `csv:"DATA_TYPE"`
	Path               int     `csv:"WRS_PATH"`
	Row                int     `csv:"WRS_ROW"`
	CloudCover         float64 `csv:"CLOUD_COVER"`
	NorthLat           float64 `csv:"NORTH_LAT"`
	SouthLat           float64 `csv:"SOUTH_LAT"`
	WestLon            float64 `csv:"WEST_LON"`
	EastLon            float64 `csv:"EAST_LON"`
	TotalSize          int64   `csv:"TOTAL_SIZE"`
	BaseURL            string  `csv:"BASE_URL"`
}

// SensingDate is the acquisition day, dropping the time of day the way the
// index filters compare.
func (s *Scene) SensingDate() (time.Time, error) {
	if len(s.SensingTime) < 10 {
		return time.Time{}, fmt.Errorf("malformed sensing time %q", s.SensingTime)
	}
	return time.Parse("2006-01-02", s.SensingTime[:10])
}

// Client fetches the scene index over HTTP, with client-credential OAuth2
// when a token endpoint is configured.
type Client struct {
	URL  string
	http *http.Client
	log  zerolog.Logger
}

func NewClient() *Client {
	httpClient := http.DefaultClient
	if tokenURL := properties.CatalogTokenURL(); tokenURL != "" {
		config := &clientcredentials.Config{
			ClientID:     properties.CatalogClientID(),
			ClientSecret: properties.CatalogClientSecret(),
			TokenURL:     tokenURL,
		}
		httpClient = config.Client(context.Background())
	}
	return &Client{URL: properties.CatalogURL(), http: httpClient, log: logging.Component("catalog")}
}

// Fetch downloads and decompresses the full index.
func (c *Client) Fetch(ctx context.Context) ([]*Scene, error) {
	if c.URL == "" {
		return nil, errors.New("no catalog endpoint configured")
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching the scene index: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scene index returned status %d", resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decompressing the scene index: %w", err)
	}
	defer gz.Close()

	var scenes []*Scene
	if err := gocsv.Unmarshal(gz, &scenes); err != nil {
		return nil, fmt.Errorf("parsing the scene index: %w", err)
	}

	c.log.Info().
		Int("scenes", len(scenes)).
		Dur("took", time.Since(start)).
		Msg("loaded scene index")
	return scenes, nil
}

// Filter narrows the index to one footprint. Path and row always apply;
// the rest only when set. MaxCloud, when positive, keeps scenes strictly
// below it; Start and End are exclusive day bounds. A positive Limit keeps
// the clearest scenes.
type Filter struct {
	Path       int
	Row        int
	Spacecraft string
	Sensor     string
	Collection string
	MaxCloud   float64
	Start      time.Time
	End        time.Time
	Limit      int
}

// Select applies the filter. Scenes with an unparseable sensing time are
// dropped when a date bound is set.
func Select(scenes []*Scene, f Filter) []*Scene {
	// Pre-collection scenes carry the placeholder category.
	category := f.Collection
	if category == "PRE" {
		category = "N/A"
	}

	var out []*Scene
	for _, s := range scenes {
		if s.Path != f.Path || s.Row != f.Row {
			continue
		}
		if f.Spacecraft != "" && s.Spacecraft != f.Spacecraft {
			continue
		}
		if f.Sensor != "" && s.Sensor != f.Sensor {
			continue
		}
		if category != "" && s.CollectionCategory != category {
			continue
		}
		if f.MaxCloud > 0 && s.CloudCover >= f.MaxCloud {
			continue
		}
		if !f.Start.IsZero() || !f.End.IsZero() {
			day, err := s.SensingDate()
			if err != nil {
				continue
			}
			if !f.Start.IsZero() && !day.After(f.Start) {
				continue
			}
			if !f.End.IsZero() && !day.Before(f.End) {
				continue
			}
		}
		out = append(out, s)
	}

	if f.Limit > 0 {
		sort.SliceStable(out, func(i, j int) bool { return out[i].CloudCover < out[j].CloudCover })
		if len(out) > f.Limit {
			out = out[:f.Limit]
		}
	}
	return out
}

// WriteManifest writes one remote scene path per line, the format the
// download command reads.
func WriteManifest(path string, scenes []*Scene) error {
	var b strings.Builder
	for _, s := range scenes {
		b.WriteString(s.BaseURL)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
