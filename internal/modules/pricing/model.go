// README: Pricing configuration snapshot, vehicle categories and quotes.
package pricing

import (
	"fmt"
	"math"
	"time"

	"transferhub/internal/types"
)

type Category string

const (
	CategoryEconomy    Category = "economy"
	CategoryComfort    Category = "comfort"
	CategoryBusiness   Category = "business"
	CategoryFirstClass Category = "first_class"
	CategoryVan        Category = "van"
	CategoryMinibus    Category = "minibus"
	CategoryBus        Category = "bus"
)

var Categories = []Category{
	CategoryEconomy, CategoryComfort, CategoryBusiness, CategoryFirstClass,
	CategoryVan, CategoryMinibus, CategoryBus,
}

func (c Category) Valid() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// Tier boundaries in km. Distance is consumed band by band.
const (
	tier1LimitKm = 10.0
	tier2LimitKm = 100.0
	tier3LimitKm = 250.0
)

var ErrInvalidConfig = fmt.Errorf("pricing config: %w", types.ErrValidation)

// Config is an immutable snapshot. Never mutate a Config returned by
// Service.Snapshot; build a new one and pass it to Service.Update.
type Config struct {
	Version  int    `json:"version" yaml:"-"`
	Currency string `json:"currency" yaml:"currency"`

	BaseFare  float64 `json:"base_fare" yaml:"base_fare"`
	Tier1Rate float64 `json:"tier1_rate" yaml:"tier1_rate"`
	Tier2Rate float64 `json:"tier2_rate" yaml:"tier2_rate"`
	Tier3Rate float64 `json:"tier3_rate" yaml:"tier3_rate"`
	Tier4Rate float64 `json:"tier4_rate" yaml:"tier4_rate"`

	CategoryMultipliers map[Category]float64 `json:"category_multipliers" yaml:"category_multipliers"`

	PeakEnabled       bool    `json:"peak_enabled" yaml:"peak_enabled"`
	PeakMultiplier    float64 `json:"peak_multiplier" yaml:"peak_multiplier"`
	WeekendEnabled    bool    `json:"weekend_enabled" yaml:"weekend_enabled"`
	WeekendMultiplier float64 `json:"weekend_multiplier" yaml:"weekend_multiplier"`

	CommissionRate        float64 `json:"commission_rate" yaml:"commission_rate"`
	PartnerCommissionRate float64 `json:"partner_commission_rate" yaml:"partner_commission_rate"`

	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
	UpdatedBy types.ID  `json:"updated_by,omitempty" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Currency:  types.DefaultCurrency,
		BaseFare:  25,
		Tier1Rate: 2.5,
		Tier2Rate: 1.8,
		Tier3Rate: 1.4,
		Tier4Rate: 1.1,
		CategoryMultipliers: map[Category]float64{
			CategoryEconomy:    1.0,
			CategoryComfort:    1.2,
			CategoryBusiness:   1.5,
			CategoryFirstClass: 2.2,
			CategoryVan:        1.6,
			CategoryMinibus:    2.0,
			CategoryBus:        3.0,
		},
		PeakMultiplier:        1.25,
		WeekendMultiplier:     1.1,
		CommissionRate:        0.295,
		PartnerCommissionRate: 0.05,
	}
}

func (c Config) Validate() error {
	if c.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidConfig)
	}
	for name, v := range map[string]float64{
		"base_fare":  c.BaseFare,
		"tier1_rate": c.Tier1Rate,
		"tier2_rate": c.Tier2Rate,
		"tier3_rate": c.Tier3Rate,
		"tier4_rate": c.Tier4Rate,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be a finite non-negative number", ErrInvalidConfig, name)
		}
	}
	for cat, m := range c.CategoryMultipliers {
		if !cat.Valid() {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidConfig, cat)
		}
		if m <= 0 {
			return fmt.Errorf("%w: multiplier for %s must be > 0", ErrInvalidConfig, cat)
		}
	}
	if c.PeakEnabled && c.PeakMultiplier <= 0 {
		return fmt.Errorf("%w: peak_multiplier must be > 0 when peak pricing is enabled", ErrInvalidConfig)
	}
	if c.WeekendEnabled && c.WeekendMultiplier <= 0 {
		return fmt.Errorf("%w: weekend_multiplier must be > 0 when weekend pricing is enabled", ErrInvalidConfig)
	}
	if c.CommissionRate < 0 || c.CommissionRate > 1 {
		return fmt.Errorf("%w: commission_rate must be within [0,1]", ErrInvalidConfig)
	}
	if c.PartnerCommissionRate < 0 || c.PartnerCommissionRate > 1 {
		return fmt.Errorf("%w: partner_commission_rate must be within [0,1]", ErrInvalidConfig)
	}
	return nil
}

// Multiplier returns the category multiplier, 1.0 for unknown categories.
func (c Config) Multiplier(cat Category) float64 {
	if m, ok := c.CategoryMultipliers[cat]; ok && m > 0 {
		return m
	}
	return 1.0
}

func (c Config) clone() Config {
	out := c
	out.CategoryMultipliers = make(map[Category]float64, len(c.CategoryMultipliers))
	for k, v := range c.CategoryMultipliers {
		out.CategoryMultipliers[k] = v
	}
	return out
}

type Quote struct {
	TotalAmount   int64              `json:"total_amount"`
	Currency      string             `json:"currency"`
	DistanceKm    float64            `json:"distance_km"`
	Category      Category           `json:"category"`
	ConfigVersion int                `json:"config_version"`
	Breakdown     map[string]float64 `json:"breakdown"`
}

// Money returns the quote in minor units.
func (q Quote) Money() types.Money {
	return types.FromUnits(q.TotalAmount, q.Currency)
}
