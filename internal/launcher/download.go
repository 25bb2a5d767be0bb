package launcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// DownloadReport summarizes a successful download run.
type DownloadReport struct {
	Profile    string
	Fetched    int
	Cached     int
	Released   int
	TotalBytes int64
}

// Download fetches every manifest entry that is not yet stored and moves the
// profile from Validating through Downloading to Ready.
//
// Entries are fetched by a bounded worker pool with per-entry exponential
// backoff. On any failure or cancellation the profile returns to Validating
// and the artifacts already stored stay stored, so a later Download resumes
// where this one stopped. A failure returns *DownloadError naming every
// failed entry.
func (m *ProfileManager) Download(ctx context.Context, name string) (*DownloadReport, error) {
	release, err := m.acquire(name)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := m.GetProfile(ctx, name)
	if err != nil {
		return nil, err
	}
	if p.State != StateValidating {
		return nil, &InvalidTransitionError{From: p.State, To: StateDownloading}
	}

	missing, err := m.missingEntries(ctx, p.Manifest)
	if err != nil {
		return nil, err
	}
	if err := m.setState(ctx, p, StateDownloading); err != nil {
		return nil, err
	}

	downloadsActive.Inc()
	defer downloadsActive.Dec()

	report, err := m.fetchMissing(ctx, p, missing)
	if err == nil {
		err = m.reconcileRefs(ctx, p, report)
	}
	if err != nil {
		// The caller's context may already be cancelled; the fallback must
		// still be persisted.
		if serr := m.setState(context.WithoutCancel(ctx), p, StateValidating); serr != nil {
			m.logger.Error("restoring profile state", "profile", name, "error", serr)
		}
		m.logger.Warn("profile download failed", "profile", name, "error", err)
		return nil, err
	}

	if err := m.setState(ctx, p, StateReady); err != nil {
		return nil, err
	}
	m.logger.Info("profile downloaded", "profile", name,
		"fetched", report.Fetched, "cached", report.Cached, "bytes", report.TotalBytes)
	return report, nil
}

// fetchMissing downloads the distinct hashes among missing.
func (m *ProfileManager) fetchMissing(ctx context.Context, p *Profile, missing []ManifestEntry) (*DownloadReport, error) {
	report := &DownloadReport{Profile: p.Name}

	var unique []ManifestEntry
	seen := make(map[string]struct{}, len(missing))
	for _, e := range missing {
		if _, ok := seen[e.Hash]; ok {
			continue
		}
		seen[e.Hash] = struct{}{}
		unique = append(unique, e)
	}
	report.Cached = len(p.Manifest.Hashes()) - len(unique)
	if len(unique) == 0 {
		return report, nil
	}

	var (
		mu     sync.Mutex
		failed []FailedEntry
		done   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)
	for _, entry := range unique {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := m.fetchEntry(gctx, p.Name, entry)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil && errors.Is(err, context.Canceled) {
					return err
				}
				failed = append(failed, FailedEntry{Path: entry.Path, Hash: entry.Hash, Err: err})
				downloadEntriesTotal.WithLabelValues("failed").Inc()
				m.feed.Publishf("[%s] failed %s: %v", p.Name, entry.Path, err)
				return err
			}
			done++
			report.Fetched++
			report.TotalBytes += entry.Size
			downloadEntriesTotal.WithLabelValues("fetched").Inc()
			m.feed.Publishf("[%s] downloaded %s (%d/%d)", p.Name, entry.Path, done, len(unique))
			return nil
		})
	}
	werr := g.Wait()

	if len(failed) > 0 {
		return nil, &DownloadError{Profile: p.Name, Failed: failed}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("download of profile %q cancelled: %w", p.Name, err)
	}
	if werr != nil {
		return nil, werr
	}
	return report, nil
}

// fetchEntry fetches one entry and stores it, retrying transient failures
// and hash mismatches with exponential backoff. The reference taken by put
// is recorded against the profile; a reference the profile already holds is
// given back.
func (m *ProfileManager) fetchEntry(ctx context.Context, profile string, entry ManifestEntry) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = m.opts.InitialBackoff
	expo.MaxInterval = m.opts.MaxBackoff
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(m.opts.MaxAttempts-1)), ctx)

	op := func() error {
		rc, err := m.fetcher.Fetch(ctx, entry.URL)
		if err != nil {
			if errors.Is(err, ErrPermanentFetch) {
				return backoff.Permanent(err)
			}
			return err
		}
		defer rc.Close()

		hash, err := m.store.Put(ctx, rc)
		if err != nil {
			return err
		}
		if hash != entry.Hash {
			if rerr := m.store.Release(ctx, hash); rerr != nil {
				m.logger.Warn("releasing mismatched download", "hash", hash, "error", rerr)
			}
			return &IntegrityError{Hash: entry.Hash, Actual: hash}
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		downloadRetriesTotal.Inc()
		m.logger.Debug("retrying fetch", "profile", profile, "path", entry.Path, "error", err, "wait", wait)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return err
	}

	added, err := m.profiles.AddProfileRef(ctx, profile, entry.Hash)
	if err != nil {
		if rerr := m.store.Release(context.WithoutCancel(ctx), entry.Hash); rerr != nil {
			m.logger.Warn("releasing unrecorded download", "hash", entry.Hash, "error", rerr)
		}
		return fmt.Errorf("recording reference %s: %w", entry.Hash, err)
	}
	if !added {
		return m.store.Release(ctx, entry.Hash)
	}
	return nil
}

// reconcileRefs makes the profile hold exactly one reference per distinct
// manifest hash: hashes that were already stored gain a reference, hashes
// dropped from the manifest are released.
func (m *ProfileManager) reconcileRefs(ctx context.Context, p *Profile, report *DownloadReport) error {
	refs, err := m.profiles.ListProfileRefs(ctx, p.Name)
	if err != nil {
		return fmt.Errorf("listing references of %q: %w", p.Name, err)
	}
	held := make(map[string]bool, len(refs))
	for _, h := range refs {
		held[h] = true
	}

	wanted := p.Manifest.Hashes()
	for _, hash := range wanted {
		if held[hash] {
			delete(held, hash)
			continue
		}
		if err := m.store.Retain(ctx, hash); err != nil {
			return err
		}
		if _, err := m.profiles.AddProfileRef(ctx, p.Name, hash); err != nil {
			return fmt.Errorf("recording reference %s: %w", hash, err)
		}
	}
	for hash := range held {
		if _, err := m.profiles.RemoveProfileRef(ctx, p.Name, hash); err != nil {
			return fmt.Errorf("dropping reference %s: %w", hash, err)
		}
		if err := m.store.Release(ctx, hash); err != nil {
			return err
		}
		report.Released++
	}
	return nil
}
