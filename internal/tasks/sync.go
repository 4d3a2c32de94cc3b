// package tasks implements the synchronization and enrichment operations
// composed from the provider clients, the quota registry, and the
// repositories.
//
// The upstream playlist source is treated as unreliable: a fetch failure
// leaves cached state untouched and surfaces as a soft staleness error, and
// a full sync reports per-step outcomes instead of failing as a unit.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/airwave/internal/models"
	"github.com/desertthunder/airwave/internal/repositories"
	"github.com/desertthunder/airwave/internal/retry"
	"github.com/desertthunder/airwave/internal/services"
	"github.com/desertthunder/airwave/internal/shared"
	"golang.org/x/time/rate"
)

// liveWindow is how recently a spin must have started for the station to be
// considered live.
const liveWindow = 20 * time.Minute

// FullSyncResult reports per-step outcomes of a full sync. A failure in one
// step never prevents the others from running.
type FullSyncResult struct {
	Station       string               `json:"station"`
	CurrentSong   *models.CurrentSong  `json:"current_song,omitempty"`
	CurrentErr    error                `json:"-"`
	RecentSongs   []models.CurrentSong `json:"recent_songs,omitempty"`
	RecentErr     error                `json:"-"`
	StreamStatus  *models.StreamStatus `json:"stream_status,omitempty"`
	StreamErr     error                `json:"-"`
	StreamUpdated bool                 `json:"stream_updated"`
}

// Succeeded reports whether every sub-operation completed.
func (r *FullSyncResult) Succeeded() bool {
	return r.CurrentErr == nil && r.RecentErr == nil && r.StreamErr == nil
}

// Partial reports whether at least one sub-operation completed and at least
// one failed.
func (r *FullSyncResult) Partial() bool {
	failures := 0
	for _, err := range []error{r.CurrentErr, r.RecentErr, r.StreamErr} {
		if err != nil {
			failures++
		}
	}
	return failures > 0 && failures < 3
}

// SyncEngine polls the playlist source and converges the cached current
// song, spin history, and live-stream status.
type SyncEngine struct {
	source  services.PlaylistSource
	songs   *repositories.SongRepository
	status  *repositories.StreamStatusRepository
	policy  retry.Policy
	timeout time.Duration
	limiter *rate.Limiter
	logger  *log.Logger
	now     func() time.Time
}

// SyncOptions tunes engine construction; zero fields take defaults.
type SyncOptions struct {
	Policy    retry.Policy
	Timeout   time.Duration
	RateLimit float64 // Outbound requests per second against the source (default 2)
	Logger    *log.Logger
	Now       func() time.Time
}

// NewSyncEngine creates a SyncEngine over the given source and repositories.
func NewSyncEngine(source services.PlaylistSource, songs *repositories.SongRepository, status *repositories.StreamStatusRepository, opts SyncOptions) *SyncEngine {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 2.0
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &SyncEngine{
		source:  source,
		songs:   songs,
		status:  status,
		policy:  opts.Policy,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// SyncCurrentSong fetches the latest spin and overwrites the cached current
// song only when the fetched entry is newer-or-equal by start time.
//
// On fetch failure the cached record is returned untouched together with a
// [shared.ErrStaleData] error: stale-but-available beats error-on-read.
func (e *SyncEngine) SyncCurrentSong(ctx context.Context, station string) (*models.CurrentSong, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	spin, err := retry.Do(ctx, e.policy, func(ctx context.Context) (*services.Spin, error) {
		return retry.RaceWithTimeout(ctx, e.timeout, "current spin fetch", func(ctx context.Context) (*services.Spin, error) {
			return e.source.Current(ctx, station)
		})
	})
	if err != nil {
		cached, cacheErr := e.songs.GetCurrent(station)
		if cacheErr != nil {
			return nil, cacheErr
		}
		return cached, fmt.Errorf("%w: %v", shared.ErrStaleData, err)
	}

	if spin == nil {
		return e.songs.GetCurrent(station)
	}

	fetched := songFromSpin(station, spin)
	cached, err := e.songs.GetCurrent(station)
	if err != nil {
		return nil, err
	}

	if !fetched.NewerOrEqual(cached) {
		// Out-of-order delivery of an older entry; keep the cache.
		return cached, nil
	}

	if err := e.songs.UpsertCurrent(fetched); err != nil {
		return nil, err
	}

	return e.songs.GetCurrent(station)
}

// SyncRecentSongs fetches a bounded historical window and upserts each entry
// independently by (station, start time), so overlapping windows converge.
func (e *SyncEngine) SyncRecentSongs(ctx context.Context, station string, hours int) ([]models.CurrentSong, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	spins, err := retry.Do(ctx, e.policy, func(ctx context.Context) ([]services.Spin, error) {
		return retry.RaceWithTimeout(ctx, e.timeout, "recent spins fetch", func(ctx context.Context) ([]services.Spin, error) {
			return e.source.Recent(ctx, station, hours)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrStaleData, err)
	}

	synced := make([]models.CurrentSong, 0, len(spins))
	for i := range spins {
		song := songFromSpin(station, &spins[i])
		if err := e.songs.UpsertHistory(song); err != nil {
			return synced, err
		}
		synced = append(synced, *song)
	}

	return synced, nil
}

// UpdateLiveStreamStatus derives liveness and the now-playing fields from
// the freshest cached song, preserving the externally reported listener
// count and stream URL, and stamps UpdatedAt.
func (e *SyncEngine) UpdateLiveStreamStatus(ctx context.Context, station string) (*models.StreamStatus, error) {
	current, err := e.songs.GetCurrent(station)
	if err != nil {
		return nil, err
	}

	existing, err := e.status.Get(station)
	if err != nil {
		return nil, err
	}

	status := models.StreamStatus{Station: station, UpdatedAt: e.now()}
	if existing != nil {
		status.Listeners = existing.Listeners
		status.StreamURL = existing.StreamURL
		status.ShowTitle = existing.ShowTitle
	}

	if current != nil {
		status.TrackTitle = current.Song
		status.TrackArtist = current.Artist
		status.IsLive = e.now().Sub(current.StartTime) < liveWindow
	}

	if err := e.status.Upsert(&status); err != nil {
		return nil, err
	}

	return &status, nil
}

// PushStatus applies an externally reported status update (listener count,
// stream URL, show title). Last writer wins on UpdatedAt.
func (e *SyncEngine) PushStatus(status models.StreamStatus) (*models.StreamStatus, error) {
	status.UpdatedAt = e.now()
	if err := e.status.Upsert(&status); err != nil {
		return nil, err
	}
	return e.status.Get(status.Station)
}

// PerformFullSync runs current-song sync, recent-history sync, and the
// stream status update in sequence. Each step runs regardless of earlier
// failures; the result reports which steps succeeded.
func (e *SyncEngine) PerformFullSync(ctx context.Context, station string, recentHours int) *FullSyncResult {
	result := &FullSyncResult{Station: station}

	result.CurrentSong, result.CurrentErr = e.SyncCurrentSong(ctx, station)
	if result.CurrentErr != nil {
		e.logger.Warn("current song sync failed", "station", station, "err", result.CurrentErr)
	}

	result.RecentSongs, result.RecentErr = e.SyncRecentSongs(ctx, station, recentHours)
	if result.RecentErr != nil {
		e.logger.Warn("recent songs sync failed", "station", station, "err", result.RecentErr)
	}

	result.StreamStatus, result.StreamErr = e.UpdateLiveStreamStatus(ctx, station)
	result.StreamUpdated = result.StreamErr == nil
	if result.StreamErr != nil {
		e.logger.Warn("stream status update failed", "station", station, "err", result.StreamErr)
	}

	return result
}

// Watch drives PerformFullSync on a fixed interval until ctx is cancelled.
// The scheduled path is the same code path as on-demand sync.
func (e *SyncEngine) Watch(ctx context.Context, station string, interval time.Duration, recentHours int) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("scheduled sync started", "station", station, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("scheduled sync stopped", "station", station)
			return
		case <-ticker.C:
			result := e.PerformFullSync(ctx, station, recentHours)
			if result.Succeeded() {
				e.logger.Debug("full sync complete", "station", station)
			}
		}
	}
}

func songFromSpin(station string, spin *services.Spin) *models.CurrentSong {
	return &models.CurrentSong{
		Station:   station,
		Artist:    spin.Artist,
		Song:      spin.Song,
		StartTime: spin.Start,
		Raw:       spin.Raw,
	}
}
