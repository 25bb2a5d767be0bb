package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"launcher-core/internal/launcher"
)

// StubManifestSource resolves manifests from a map keyed by
// "<gameVersion>/<loader identifier>".
type StubManifestSource struct {
	mu        sync.Mutex
	manifests map[string]launcher.Manifest
	Err       error
	Calls     int
}

func NewStubManifestSource() *StubManifestSource {
	return &StubManifestSource{manifests: make(map[string]launcher.Manifest)}
}

// Set registers the manifest returned for gameVersion and loader.
func (s *StubManifestSource) Set(gameVersion string, loader launcher.LoaderKind, m launcher.Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[gameVersion+"/"+loader.String()] = m
}

func (s *StubManifestSource) ResolveManifest(ctx context.Context, gameVersion string, loader launcher.LoaderKind) (*launcher.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	m, ok := s.manifests[gameVersion+"/"+loader.String()]
	if !ok {
		return nil, fmt.Errorf("manifest %s/%s: %w", gameVersion, loader, launcher.ErrNotFound)
	}
	m.Entries = append([]launcher.ManifestEntry(nil), m.Entries...)
	return &m, nil
}

// StubFetcher serves bytes from memory by URL. Failures can be scripted per
// URL, and a gate can hold every fetch until it is closed.
type StubFetcher struct {
	mu        sync.Mutex
	content   map[string][]byte
	failures  map[string]int
	permanent map[string]bool
	calls     map[string]int

	// Gate, when non-nil, blocks each Fetch until it is closed or the
	// context ends.
	Gate chan struct{}
}

func NewStubFetcher() *StubFetcher {
	return &StubFetcher{
		content:   make(map[string][]byte),
		failures:  make(map[string]int),
		permanent: make(map[string]bool),
		calls:     make(map[string]int),
	}
}

// Serve registers data for url.
func (f *StubFetcher) Serve(url string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content[url] = data
}

// FailNext makes the next n fetches of url fail with a transient error.
func (f *StubFetcher) FailNext(url string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[url] = n
}

// FailPermanently makes every fetch of url fail with ErrPermanentFetch.
func (f *StubFetcher) FailPermanently(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permanent[url] = true
}

// Calls returns how many times url was fetched.
func (f *StubFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// ErrTransient is returned for scripted transient failures.
var ErrTransient = errors.New("transient fetch failure")

func (f *StubFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.permanent[url] {
		return nil, fmt.Errorf("fetch %s: %w", url, launcher.ErrPermanentFetch)
	}
	if f.failures[url] > 0 {
		f.failures[url]--
		return nil, fmt.Errorf("fetch %s: %w", url, ErrTransient)
	}
	data, ok := f.content[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", url, launcher.ErrPermanentFetch)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

var (
	_ launcher.ManifestSource = (*StubManifestSource)(nil)
	_ launcher.Fetcher        = (*StubFetcher)(nil)
)
