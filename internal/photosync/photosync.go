// Package photosync reconciles locally stored meal photos with the remote
// blob store. It owns the per-asset sync state machine: pending assets get
// uploaded, failed ones retried on a backoff schedule, orphaned rows marked
// deleted, and locally missing files re-downloaded from their remote refs.
package photosync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/igor-kupczynski/foodbuddy/internal/cloudstore"
	"github.com/igor-kupczynski/foodbuddy/internal/imageproc"
	"github.com/igor-kupczynski/foodbuddy/internal/imagestore"
	"github.com/igor-kupczynski/foodbuddy/internal/model"
	"github.com/igor-kupczynski/foodbuddy/internal/store"
)

// Engine drives sync cycles. It holds no in-memory sync state of its own:
// every cycle re-reads asset rows, so concurrent invocations stay correct
// even though callers are expected to serialize cycles with an in-flight
// guard.
type Engine struct {
	store  store.Store
	images *imagestore.Store
	proc   *imageproc.Processor
	// cloud is nil when cloud sync is disabled; upload and hydration
	// passes are skipped but bootstrap and repair still run.
	cloud cloudstore.Store
	log   zerolog.Logger
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's clock. Used by tests that steer the
// retry schedule.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(
	s store.Store,
	images *imagestore.Store,
	proc *imageproc.Processor,
	cloud cloudstore.Store,
	log zerolog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:  s,
		images: images,
		proc:   proc,
		cloud:  cloud,
		log:    log,
		now:    time.Now,
	}
	for _, f := range opts {
		f(e)
	}
	return e
}

// RunSyncCycle executes one full cycle: bootstrap missing asset rows,
// repair stale links, upload eligible assets, hydrate missing local files.
// The phases run strictly in that order because each assumes the
// invariants the previous one established. A failure on a single asset is
// recorded on that asset and never aborts the cycle; only a failure to
// read or write the store itself does.
func (e *Engine) RunSyncCycle(ctx context.Context) error {
	if err := e.bootstrap(ctx); err != nil {
		return fmt.Errorf("sync bootstrap: %w", err)
	}
	if err := e.repair(ctx); err != nil {
		return fmt.Errorf("sync repair: %w", err)
	}
	if e.cloud == nil {
		e.log.Debug().Msg("sync: no cloud store configured, skipping upload and hydration")
		return nil
	}
	if err := e.upload(ctx); err != nil {
		return fmt.Errorf("sync upload: %w", err)
	}
	if err := e.hydrate(ctx); err != nil {
		return fmt.Errorf("sync hydrate: %w", err)
	}
	return nil
}

// RetryFailedNow makes every failed asset immediately eligible again and
// runs a cycle. Returns the number of assets reset.
func (e *Engine) RetryFailedNow(ctx context.Context) (int, error) {
	n, err := e.store.PhotoAssets().ResetFailed(ctx, e.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.log.Info().Int("assets", n).Msg("sync: failed assets reset for retry")
	}
	return n, e.RunSyncCycle(ctx)
}

// RetryAsset resets a single failed asset and runs a cycle. A missing or
// non-failed asset is a no-op apart from the cycle.
func (e *Engine) RetryAsset(ctx context.Context, entryID uuid.UUID) error {
	asset, err := e.store.PhotoAssets().Get(ctx, entryID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}
	if err == nil && asset.State == model.SyncFailed {
		now := e.now()
		asset.State = model.SyncPending
		asset.NextRetryAt = &now
		asset.UpdatedAt = now
		if err := e.store.PhotoAssets().Update(ctx, asset); err != nil {
			return err
		}
	}
	return e.RunSyncCycle(ctx)
}

// Diagnostics is a point-in-time summary of asset sync states.
type Diagnostics struct {
	Pending         int
	Uploaded        int
	Failed          int
	Deleted         int
	WaitingForRetry int
}

// Summarize counts assets per state. WaitingForRetry is the subset of
// failed assets whose backoff window has not elapsed yet.
func (e *Engine) Summarize(ctx context.Context) (Diagnostics, error) {
	assets, err := e.store.PhotoAssets().List(ctx)
	if err != nil {
		return Diagnostics{}, err
	}

	var d Diagnostics
	now := e.now()
	for _, a := range assets {
		switch a.State {
		case model.SyncPending:
			d.Pending++
		case model.SyncUploaded:
			d.Uploaded++
		case model.SyncFailed:
			d.Failed++
			if a.NextRetryAt != nil && a.NextRetryAt.After(now) {
				d.WaitingForRetry++
			}
		case model.SyncDeleted:
			d.Deleted++
		}
	}
	return d, nil
}

// RecentFailures returns the most recently updated failed assets, capped
// at limit (default 20).
func (e *Engine) RecentFailures(ctx context.Context, limit int) ([]*model.EntryPhotoAsset, error) {
	if limit <= 0 {
		limit = 20
	}
	assets, err := e.store.PhotoAssets().List(ctx)
	if err != nil {
		return nil, err
	}

	var out []*model.EntryPhotoAsset
	for _, a := range assets {
		if a.State != model.SyncFailed {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// bootstrap creates an asset row for every entry that lacks one. When the
// entry's local image is present the asset starts pending with a freshly
// derived thumbnail; when the file is gone the asset starts failed with
// retryCount 1 and a scheduled retry, so no entry is ever left without a
// sync record.
func (e *Engine) bootstrap(ctx context.Context) error {
	entries, err := e.store.Entries().List(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		_, err := e.store.PhotoAssets().Get(ctx, entry.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}

		now := e.now()
		asset := &model.EntryPhotoAsset{
			ID:        entry.ID,
			EntryID:   entry.ID,
			UpdatedAt: now,
		}

		if entry.ImageFilename != "" && e.images.FileExists(entry.ImageFilename) {
			full := entry.ImageFilename
			asset.FullImageFilename = &full
			asset.State = model.SyncPending
			if thumb, err := e.deriveThumbnail(entry.ID, full); err != nil {
				e.log.Warn().Err(err).
					Str("entry", entry.ID.String()).
					Msg("sync bootstrap: thumbnail derivation failed")
			} else {
				asset.ThumbnailFilename = &thumb
			}
		} else {
			// Keep the entry's filename on the asset so a later retry can
			// still find the file if it reappears.
			if entry.ImageFilename != "" {
				full := entry.ImageFilename
				asset.FullImageFilename = &full
			}
			msg := "local image file missing at bootstrap"
			retryAt := now.Add(Backoff(1))
			asset.State = model.SyncFailed
			asset.LastError = &msg
			asset.RetryCount = 1
			asset.NextRetryAt = &retryAt
		}

		if err := e.store.PhotoAssets().Create(ctx, asset); err != nil {
			return err
		}

		if entry.PhotoAssetID == nil || *entry.PhotoAssetID != asset.ID {
			id := asset.ID
			entry.PhotoAssetID = &id
			entry.UpdatedAt = now
			if err := e.store.Entries().Update(ctx, entry); err != nil {
				return err
			}
		}

		e.log.Info().
			Str("entry", entry.ID.String()).
			Str("state", string(asset.State)).
			Msg("sync bootstrap: asset row created")
	}
	return nil
}

// repair fixes stale links: assets whose entry is gone become deleted, and
// entries whose asset pointer or filename drifted from the asset row are
// rewritten to match.
func (e *Engine) repair(ctx context.Context) error {
	assets, err := e.store.PhotoAssets().List(ctx)
	if err != nil {
		return err
	}

	for _, asset := range assets {
		if asset.State == model.SyncDeleted {
			continue
		}

		entry, err := e.store.Entries().Get(ctx, asset.EntryID)
		if errors.Is(err, model.ErrNotFound) {
			now := e.now()
			asset.State = model.SyncDeleted
			asset.LastError = nil
			asset.NextRetryAt = nil
			asset.UpdatedAt = now
			if err := e.store.PhotoAssets().Update(ctx, asset); err != nil {
				return err
			}
			e.log.Info().
				Str("asset", asset.ID.String()).
				Msg("sync repair: orphaned asset marked deleted")
			continue
		}
		if err != nil {
			return err
		}

		changed := false
		if entry.PhotoAssetID == nil || *entry.PhotoAssetID != asset.ID {
			id := asset.ID
			entry.PhotoAssetID = &id
			changed = true
		}
		if asset.FullImageFilename != nil && *asset.FullImageFilename != "" &&
			entry.ImageFilename != *asset.FullImageFilename {
			entry.ImageFilename = *asset.FullImageFilename
			changed = true
		}
		if changed {
			entry.UpdatedAt = e.now()
			if err := e.store.Entries().Update(ctx, entry); err != nil {
				return err
			}
			e.log.Info().
				Str("entry", entry.ID.String()).
				Msg("sync repair: entry relinked to its asset")
		}

		// Rebuild a missing thumbnail from the stored full image. Uploaded
		// assets with a remote ref are left for the hydration pass.
		if missingFile(e.images, asset.ThumbnailFilename) &&
			!(asset.State == model.SyncUploaded && asset.ThumbAssetRef != nil) &&
			asset.FullImageFilename != nil && e.images.FileExists(*asset.FullImageFilename) {
			name, err := e.deriveThumbnail(asset.ID, *asset.FullImageFilename)
			if err != nil {
				e.log.Warn().Err(err).
					Str("asset", asset.ID.String()).
					Msg("sync repair: thumbnail rebuild failed")
				continue
			}
			asset.ThumbnailFilename = &name
			asset.UpdatedAt = e.now()
			if err := e.store.PhotoAssets().Update(ctx, asset); err != nil {
				return err
			}
		}
	}
	return nil
}

// upload pushes every eligible asset to the remote store: pending assets
// and failed ones whose backoff window has elapsed. A failed upload is
// recorded on the asset and the pass moves on.
func (e *Engine) upload(ctx context.Context) error {
	assets, err := e.store.PhotoAssets().List(ctx)
	if err != nil {
		return err
	}

	for _, asset := range assets {
		if !e.uploadEligible(asset) {
			continue
		}

		if err := e.uploadOne(ctx, asset); err != nil {
			e.log.Error().Err(err).
				Str("asset", asset.ID.String()).
				Int("retry_count", asset.RetryCount).
				Msg("sync upload: attempt failed")
			if err := e.markUploadFailure(ctx, asset, err); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) uploadEligible(asset *model.EntryPhotoAsset) bool {
	switch asset.State {
	case model.SyncPending:
		return true
	case model.SyncFailed:
		return asset.NextRetryAt == nil || !asset.NextRetryAt.After(e.now())
	default:
		return false
	}
}

func (e *Engine) uploadOne(ctx context.Context, asset *model.EntryPhotoAsset) error {
	fullName, err := e.resolveUploadSource(ctx, asset)
	if err != nil {
		return err
	}
	full, ok, err := e.images.LoadBytes(fullName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("local full image missing: %s", fullName)
	}
	asset.FullImageFilename = &fullName

	thumb, err := e.loadOrRegenerateThumbnail(asset, full)
	if err != nil {
		return err
	}

	refs, err := e.cloud.Upload(ctx, asset.EntryID, full, thumb)
	if err != nil {
		return err
	}

	now := e.now()
	asset.FullAssetRef = &refs.FullAssetRef
	asset.ThumbAssetRef = &refs.ThumbAssetRef
	asset.State = model.SyncUploaded
	asset.LastError = nil
	asset.RetryCount = 0
	asset.NextRetryAt = nil
	asset.UpdatedAt = now
	if err := e.store.PhotoAssets().Update(ctx, asset); err != nil {
		return err
	}

	e.log.Info().
		Str("asset", asset.ID.String()).
		Msg("sync upload: asset uploaded")
	return nil
}

// resolveUploadSource picks the local full image to upload: the filename
// recorded on the asset when present, otherwise the owning entry's. An
// asset that failed before a filename was recorded still recovers once the
// entry's file is back on disk.
func (e *Engine) resolveUploadSource(ctx context.Context, asset *model.EntryPhotoAsset) (string, error) {
	if asset.FullImageFilename != nil && *asset.FullImageFilename != "" {
		return *asset.FullImageFilename, nil
	}
	entry, err := e.store.Entries().Get(ctx, asset.EntryID)
	if err != nil {
		return "", fmt.Errorf("resolve upload source: %w", err)
	}
	if entry.ImageFilename == "" {
		return "", errors.New("no local full image filename")
	}
	return entry.ImageFilename, nil
}

// loadOrRegenerateThumbnail returns thumbnail bytes for the asset,
// rebuilding and persisting the file from the full image when it is
// missing on disk.
func (e *Engine) loadOrRegenerateThumbnail(asset *model.EntryPhotoAsset, full []byte) ([]byte, error) {
	if asset.ThumbnailFilename != nil && *asset.ThumbnailFilename != "" {
		data, ok, err := e.images.LoadBytes(*asset.ThumbnailFilename)
		if err != nil {
			return nil, err
		}
		if ok {
			return data, nil
		}
	}

	thumb, err := e.proc.ThumbnailJPEG(full)
	if err != nil {
		return nil, fmt.Errorf("regenerate thumbnail: %w", err)
	}
	name, err := e.images.SaveBytes(thumb, thumbFilename(asset.ID))
	if err != nil {
		return nil, err
	}
	asset.ThumbnailFilename = &name
	return thumb, nil
}

// hydrate restores locally missing files for uploaded assets from their
// remote references. A hydration failure is treated like an upload failure
// so the asset re-enters the retry cycle instead of being skipped forever.
func (e *Engine) hydrate(ctx context.Context) error {
	assets, err := e.store.PhotoAssets().List(ctx)
	if err != nil {
		return err
	}

	for _, asset := range assets {
		if asset.State != model.SyncUploaded {
			continue
		}

		if err := e.hydrateOne(ctx, asset); err != nil {
			e.log.Error().Err(err).
				Str("asset", asset.ID.String()).
				Msg("sync hydrate: attempt failed")
			if err := e.markUploadFailure(ctx, asset, err); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) hydrateOne(ctx context.Context, asset *model.EntryPhotoAsset) error {
	changed := false

	if missingFile(e.images, asset.FullImageFilename) && asset.FullAssetRef != nil {
		data, err := e.cloud.Download(ctx, *asset.FullAssetRef)
		if err != nil {
			return fmt.Errorf("download full image: %w", err)
		}
		name, err := e.images.SaveBytes(data, fullFilename(asset.ID))
		if err != nil {
			return err
		}
		asset.FullImageFilename = &name
		changed = true

		entry, err := e.store.Entries().Get(ctx, asset.EntryID)
		if err == nil && entry.ImageFilename != name {
			entry.ImageFilename = name
			entry.UpdatedAt = e.now()
			if err := e.store.Entries().Update(ctx, entry); err != nil {
				return err
			}
		} else if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}
	}

	if missingFile(e.images, asset.ThumbnailFilename) && asset.ThumbAssetRef != nil {
		data, err := e.cloud.Download(ctx, *asset.ThumbAssetRef)
		if err != nil {
			return fmt.Errorf("download thumbnail: %w", err)
		}
		name, err := e.images.SaveBytes(data, thumbFilename(asset.ID))
		if err != nil {
			return err
		}
		asset.ThumbnailFilename = &name
		changed = true
	}

	if changed {
		asset.UpdatedAt = e.now()
		if err := e.store.PhotoAssets().Update(ctx, asset); err != nil {
			return err
		}
		e.log.Info().
			Str("asset", asset.ID.String()).
			Msg("sync hydrate: local files restored")
	}
	return nil
}

// markUploadFailure records one failed attempt: increments the retry
// count, schedules the next attempt per the backoff policy, and stores the
// error text.
func (e *Engine) markUploadFailure(ctx context.Context, asset *model.EntryPhotoAsset, cause error) error {
	now := e.now()
	msg := cause.Error()
	retryAt := now.Add(Backoff(asset.RetryCount + 1))

	asset.State = model.SyncFailed
	asset.LastError = &msg
	asset.RetryCount++
	asset.NextRetryAt = &retryAt
	asset.UpdatedAt = now
	return e.store.PhotoAssets().Update(ctx, asset)
}

// deriveThumbnail builds and persists a thumbnail from a stored full
// image, returning the filename used.
func (e *Engine) deriveThumbnail(assetID uuid.UUID, fullName string) (string, error) {
	data, ok, err := e.images.LoadBytes(fullName)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("full image missing: %s", fullName)
	}
	thumb, err := e.proc.ThumbnailJPEG(data)
	if err != nil {
		return "", err
	}
	return e.images.SaveBytes(thumb, thumbFilename(assetID))
}

func missingFile(images *imagestore.Store, name *string) bool {
	return name == nil || *name == "" || !images.FileExists(*name)
}

func fullFilename(assetID uuid.UUID) string {
	return fmt.Sprintf("%s-full.jpg", assetID)
}

func thumbFilename(assetID uuid.UUID) string {
	return fmt.Sprintf("%s-thumb.jpg", assetID)
}
