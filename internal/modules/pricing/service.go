// README: Pricing service computes tiered fare quotes from an atomically swapped config snapshot.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"transferhub/internal/modules/events"
	"transferhub/internal/observability"
	"transferhub/internal/types"
)

var ErrInvalidDistance = fmt.Errorf("distance: %w", types.ErrValidation)

// ConfigStore persists config versions. Save must fail with a types.ErrConflict
// wrapped error when the version already exists.
type ConfigStore interface {
	Latest(ctx context.Context) (Config, error)
	Save(ctx context.Context, cfg Config) error
}

type Service struct {
	store   ConfigStore
	logger  *slog.Logger
	events  events.Publisher
	now     func() time.Time
	current atomic.Pointer[Config]
	// serialises writers only; readers never take it
	writeMu sync.Mutex
}

func NewService(store ConfigStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, logger: logger, events: events.Nop{}, now: time.Now}
	initial := DefaultConfig()
	initial.Version = 1
	s.current.Store(&initial)
	return s
}

// Load replaces the in-memory snapshot with the latest persisted version.
// A missing row keeps the defaults and persists them as version 1.
func (s *Service) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	cfg, err := s.store.Latest(ctx)
	if err != nil {
		if isNotFound(err) {
			cur := s.Snapshot()
			cur.UpdatedAt = s.now()
			return s.store.Save(ctx, cur)
		}
		return fmt.Errorf("load pricing config: %w", err)
	}
	s.current.Store(&cfg)
	observability.PricingVersion.Set(float64(cfg.Version))
	s.logger.Info("pricing config loaded", slog.Int("version", cfg.Version))
	return nil
}

// SetPublisher routes pricing.updated events to p.
func (s *Service) SetPublisher(p events.Publisher) {
	if p != nil {
		s.events = p
	}
}

// Seed installs cfg as the starting snapshot without persisting it.
func (s *Service) Seed(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c := cfg.clone()
	if c.Version == 0 {
		c.Version = 1
	}
	s.current.Store(&c)
	return nil
}

// Snapshot returns a private copy of the current configuration.
func (s *Service) Snapshot() Config {
	return s.current.Load().clone()
}

// Update validates cfg, assigns the next version, persists it and then
// swaps the in-memory snapshot. Concurrent readers see either the old or
// the new snapshot, never a mix.
func (s *Service) Update(ctx context.Context, cfg Config, updatedBy types.ID) (Config, error) {
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := cfg.clone()
	next.Version = s.current.Load().Version + 1
	next.UpdatedAt = s.now()
	next.UpdatedBy = updatedBy
	if s.store != nil {
		if err := s.store.Save(ctx, next); err != nil {
			return Config{}, err
		}
	}
	s.current.Store(&next)
	observability.PricingVersion.Set(float64(next.Version))
	s.logger.Info("pricing config updated",
		slog.Int("version", next.Version),
		slog.String("updated_by", string(updatedBy)),
	)
	if err := s.events.Publish(ctx, events.Event{
		Type:       events.PricingUpdated,
		ActorID:    updatedBy,
		Attrs:      map[string]string{"version": fmt.Sprint(next.Version)},
		OccurredAt: next.UpdatedAt,
	}); err != nil {
		observability.PublishFailures.Inc()
		s.logger.Warn("publish pricing update failed", slog.Any("err", err))
	}
	return next.clone(), nil
}

// Estimate quotes a trip against the current snapshot.
func (s *Service) Estimate(ctx context.Context, distanceKm float64, category Category) (Quote, error) {
	if distanceKm < 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return Quote{}, fmt.Errorf("%w: %v km", ErrInvalidDistance, distanceKm)
	}
	return CalculatePrice(distanceKm, category, s.Snapshot(), s.now()), nil
}

// CalculatePrice is the pure tiered-distance pricing function. Distance is
// consumed tier by tier; zero or negative distance yields the base fare with
// multipliers still applied.
func CalculatePrice(distanceKm float64, category Category, cfg Config, now time.Time) Quote {
	breakdown := map[string]float64{"base": cfg.BaseFare}
	price := cfg.BaseFare

	remaining := distanceKm
	if remaining < 0 || math.IsNaN(remaining) {
		remaining = 0
	}
	bands := []struct {
		name  string
		width float64
		rate  float64
	}{
		{"tier1", tier1LimitKm, cfg.Tier1Rate},
		{"tier2", tier2LimitKm - tier1LimitKm, cfg.Tier2Rate},
		{"tier3", tier3LimitKm - tier2LimitKm, cfg.Tier3Rate},
		{"tier4", math.Inf(1), cfg.Tier4Rate},
	}
	for _, b := range bands {
		if remaining <= 0 {
			break
		}
		used := math.Min(remaining, b.width)
		charge := used * b.rate
		breakdown[b.name] = charge
		price += charge
		remaining -= used
	}

	mult := cfg.Multiplier(category)
	breakdown["category_multiplier"] = mult
	price *= mult

	if cfg.PeakEnabled {
		breakdown["peak_multiplier"] = cfg.PeakMultiplier
		price *= cfg.PeakMultiplier
	}
	if cfg.WeekendEnabled && isWeekend(now) {
		breakdown["weekend_multiplier"] = cfg.WeekendMultiplier
		price *= cfg.WeekendMultiplier
	}

	return Quote{
		TotalAmount:   int64(math.Round(price)),
		Currency:      cfg.Currency,
		DistanceKm:    distanceKm,
		Category:      category,
		ConfigVersion: cfg.Version,
		Breakdown:     breakdown,
	}
}

func isWeekend(t time.Time) bool {
	d := t.Weekday()
	return d == time.Saturday || d == time.Sunday
}
