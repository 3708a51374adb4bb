package reports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrInvalidRequest = errors.New("reports: invalid request")

// CallerStats summarizes a single caller's contribution; shown in the
// caller app after each call.
type CallerStats struct {
	ReporterID string `json:"reporter_id"`
	Total      int    `json:"total"`
	Today      int    `json:"today"`
}

// StatsService computes caller stats, with a short redis cache in front
// of the counts so the stats panel doesn't hammer the report store.
type StatsService struct {
	repo  Repository
	cache *redis.Client // optional; nil disables caching
	ttl   time.Duration

	clock func() time.Time
}

func NewStatsService(repo Repository, cache *redis.Client) *StatsService {
	return &StatsService{repo: repo, cache: cache, ttl: time.Minute, clock: time.Now}
}

func statsKey(reporterID string) string { return "caller_stats:" + reporterID }

func (s *StatsService) CallerStats(ctx context.Context, reporterID string) (CallerStats, error) {
	if reporterID == "" {
		return CallerStats{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallerStats{}, errors.New("reports: repository not configured")
	}

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, statsKey(reporterID)).Bytes(); err == nil {
			var cached CallerStats
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}

	now := s.clock().UTC()
	total, err := s.repo.CountByReporter(ctx, reporterID)
	if err != nil {
		return CallerStats{}, err
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today, err := s.repo.CountByReporterSince(ctx, reporterID, midnight)
	if err != nil {
		return CallerStats{}, err
	}

	out := CallerStats{ReporterID: reporterID, Total: total, Today: today}
	if s.cache != nil {
		if raw, err := json.Marshal(out); err == nil {
			// Cache write failures are not worth failing the read.
			_ = s.cache.Set(ctx, statsKey(reporterID), raw, s.ttl).Err()
		}
	}
	return out, nil
}

// Invalidate drops the cached stats after a new report lands.
func (s *StatsService) Invalidate(ctx context.Context, reporterID string) {
	if s.cache == nil || reporterID == "" {
		return
	}
	_ = s.cache.Del(ctx, statsKey(reporterID)).Err()
}
