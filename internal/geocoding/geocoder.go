package geocoding

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"rentals/server/config"
	"rentals/server/internal/logging"
)

const cacheFileName = "geocode_cache.json"

type Geocoder struct {
	logger      *logrus.Logger
	endpoint    string
	cacheDir    string
	minInterval time.Duration
	cache       map[string][]float64
	cacheLock   sync.RWMutex
	client      *http.Client

	// requestLock spaces outgoing requests by minInterval
	requestLock sync.Mutex
	lastRequest time.Time
}

func NewGeocoder(cfg *config.Config, logger *logrus.Logger) *Geocoder {
	if logger == nil {
		logger = logging.Default()
	}

	g := &Geocoder{
		logger:      logger,
		endpoint:    cfg.Geocoder.URL,
		cacheDir:    cfg.Geocoder.CacheDir,
		minInterval: cfg.Geocoder.MinInterval,
		cache:       make(map[string][]float64),
		client:      &http.Client{Timeout: 10 * time.Second},
	}

	if g.cacheDir != "" {
		if err := os.MkdirAll(g.cacheDir, 0755); err != nil {
			logger.WithError(err).Warn("Could not create geocode cache directory")
		}
		g.loadCache()
	}

	return g
}

func (g *Geocoder) loadCache() {
	data, err := os.ReadFile(filepath.Join(g.cacheDir, cacheFileName))
	if err != nil {
		if !os.IsNotExist(err) {
			g.logger.WithError(err).Warn("Could not load geocode cache")
		}
		return
	}

	g.cacheLock.Lock()
	defer g.cacheLock.Unlock()
	if err := json.Unmarshal(data, &g.cache); err != nil {
		g.logger.WithError(err).Error("Failed to parse geocode cache")
		return
	}

	g.logger.Infof("Loaded %d cached locations", len(g.cache))
}

func (g *Geocoder) saveCache() {
	if g.cacheDir == "" {
		return
	}

	g.cacheLock.RLock()
	data, err := json.Marshal(g.cache)
	g.cacheLock.RUnlock()
	if err != nil {
		g.logger.WithError(err).Error("Failed to marshal geocode cache")
		return
	}

	if err := os.WriteFile(filepath.Join(g.cacheDir, cacheFileName), data, 0644); err != nil {
		g.logger.WithError(err).Error("Failed to save geocode cache")
	}
}

type nominatimResponse []struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func cacheKey(location string) string {
	return strings.ToLower(strings.Join(strings.Fields(location), " "))
}

// GeocodeLocation resolves a free-text listing location to latitude and longitude
func (g *Geocoder) GeocodeLocation(location string) (float64, float64, error) {
	key := cacheKey(location)
	if key == "" {
		return 0, 0, fmt.Errorf("empty location")
	}

	g.cacheLock.RLock()
	coords, ok := g.cache[key]
	g.cacheLock.RUnlock()
	if ok {
		if len(coords) != 2 {
			return 0, 0, fmt.Errorf("invalid cached coordinates for %q", location)
		}
		g.logger.WithFields(logrus.Fields{
			"location": location,
			"source":   "cache",
		}).Debug("Found coordinates in cache")
		return coords[0], coords[1], nil
	}

	lat, lon, err := g.query(location)
	if err != nil {
		return 0, 0, err
	}

	g.logger.WithFields(logrus.Fields{
		"location":  location,
		"latitude":  lat,
		"longitude": lon,
		"source":    "nominatim",
	}).Info("Successfully geocoded location")

	g.cacheLock.Lock()
	g.cache[key] = []float64{lat, lon}
	g.cacheLock.Unlock()
	g.saveCache()

	return lat, lon, nil
}

func (g *Geocoder) query(location string) (float64, float64, error) {
	// Nominatim's usage policy allows one request per second
	g.requestLock.Lock()
	if wait := g.minInterval - time.Since(g.lastRequest); wait > 0 {
		time.Sleep(wait)
	}
	g.lastRequest = time.Now()
	g.requestLock.Unlock()

	params := url.Values{
		"q":      []string{location},
		"format": []string{"json"},
		"limit":  []string{"1"},
	}

	req, err := http.NewRequest(http.MethodGet, g.endpoint, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", "Rentals Listing Service/1.0")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).WithField("location", location).Error("Geocoding request failed")
		return 0, 0, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geocoding request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read response: %w", err)
	}

	var result nominatimResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, 0, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(result) == 0 {
		g.logger.WithField("location", location).Warn("No results found")
		return 0, 0, fmt.Errorf("no results found for location: %s", location)
	}

	lat, err := strconv.ParseFloat(result[0].Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q: %w", result[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(result[0].Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q: %w", result[0].Lon, err)
	}

	return lat, lon, nil
}
