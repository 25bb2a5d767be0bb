// Package metadata resolves profile manifests from the remote version and
// loader metadata service.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"launcher-core/internal/launcher"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lcore_manifest_cache_hits_total",
		Help: "Manifest lookups served from the cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lcore_manifest_cache_misses_total",
		Help: "Manifest lookups that went to the metadata service.",
	})
)

const maxManifestBytes = 16 << 20

// HTTPSource implements launcher.ManifestSource against
// GET <base>/manifests/<gameVersion>/<loader>.json.
type HTTPSource struct {
	base   *url.URL
	client *http.Client
	cache  *expirable.LRU[string, *launcher.Manifest]
}

var _ launcher.ManifestSource = (*HTTPSource)(nil)

// NewHTTPSource creates a source. cacheSize <= 0 disables caching.
func NewHTTPSource(baseURL string, timeout time.Duration, cacheSize int, cacheTTL time.Duration) (*HTTPSource, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid metadata base url %q", baseURL)
	}
	s := &HTTPSource{base: base, client: &http.Client{Timeout: timeout}}
	if cacheSize > 0 {
		s.cache = expirable.NewLRU[string, *launcher.Manifest](cacheSize, nil, cacheTTL)
	}
	return s, nil
}

type manifestDoc struct {
	LaunchVersion string     `json:"launch_version"`
	MainClass     string     `json:"main_class"`
	Entries       []entryDoc `json:"entries"`
}

type entryDoc struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

func (s *HTTPSource) ResolveManifest(ctx context.Context, gameVersion string, loader launcher.LoaderKind) (*launcher.Manifest, error) {
	id, err := loader.Identifier()
	if err != nil {
		return nil, err
	}
	key := gameVersion + "/" + id

	if s.cache != nil {
		if m, ok := s.cache.Get(key); ok {
			cacheHitsTotal.Inc()
			return cloneManifest(m), nil
		}
		cacheMissesTotal.Inc()
	}

	m, err := s.fetch(ctx, gameVersion, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Add(key, m)
	}
	return cloneManifest(m), nil
}

func (s *HTTPSource) fetch(ctx context.Context, gameVersion, loader string) (*launcher.Manifest, error) {
	endpoint := s.base.JoinPath("manifests", gameVersion, loader+".json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building manifest request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest %s/%s: %w", gameVersion, loader, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("manifest %s/%s: %w", gameVersion, loader, launcher.ErrNotFound)
	default:
		return nil, fmt.Errorf("fetching manifest %s/%s: %s", gameVersion, loader, resp.Status)
	}

	var doc manifestDoc
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxManifestBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding manifest %s/%s: %w", gameVersion, loader, err)
	}
	return s.convert(endpoint, doc)
}

// convert validates the document and resolves entry URLs relative to the
// manifest's own location.
func (s *HTTPSource) convert(from *url.URL, doc manifestDoc) (*launcher.Manifest, error) {
	if doc.MainClass == "" {
		return nil, fmt.Errorf("manifest has no main class")
	}
	m := &launcher.Manifest{
		LaunchVersion: doc.LaunchVersion,
		MainClass:     doc.MainClass,
		Entries:       make([]launcher.ManifestEntry, 0, len(doc.Entries)),
	}
	for i, e := range doc.Entries {
		if e.Path == "" {
			return nil, fmt.Errorf("manifest entry %d has no path", i)
		}
		if !launcher.ValidHash(e.Hash) {
			return nil, fmt.Errorf("manifest entry %s: malformed hash %q", e.Path, e.Hash)
		}
		if e.Size < 0 {
			return nil, fmt.Errorf("manifest entry %s: negative size", e.Path)
		}
		kind, err := parseKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %s: %w", e.Path, err)
		}
		ref, err := url.Parse(e.URL)
		if err != nil || e.URL == "" {
			return nil, fmt.Errorf("manifest entry %s: invalid url %q", e.Path, e.URL)
		}
		m.Entries = append(m.Entries, launcher.ManifestEntry{
			Path: e.Path,
			Hash: e.Hash,
			Size: e.Size,
			Kind: kind,
			URL:  from.ResolveReference(ref).String(),
		})
	}
	return m, nil
}

func parseKind(s string) (launcher.EntryKind, error) {
	switch k := launcher.EntryKind(s); k {
	case launcher.EntryClient, launcher.EntryLibrary, launcher.EntryAsset, launcher.EntryMod, launcher.EntryNative:
		return k, nil
	case "":
		return launcher.EntryAsset, nil
	default:
		return "", fmt.Errorf("unknown entry kind %q", s)
	}
}

func cloneManifest(m *launcher.Manifest) *launcher.Manifest {
	out := *m
	out.Entries = append([]launcher.ManifestEntry(nil), m.Entries...)
	return &out
}

// Unconfigured is used when no metadata base URL is set; every lookup fails.
type Unconfigured struct{}

func (Unconfigured) ResolveManifest(context.Context, string, launcher.LoaderKind) (*launcher.Manifest, error) {
	return nil, fmt.Errorf("metadata.base_url is not configured")
}
