package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

const (
	HoursPerDay = 24

	DefaultRatePerMinute = 2.0
)

type Pack struct {
	Minutes int
	Price   int64
}

type MarketRate struct {
	Destination     string
	RatePerMinute   float64
	Packs           []Pack
	HourlyModifiers [HoursPerDay]float64
	UpdatedAt       time.Time
}

func NeutralHourlyModifiers() [HoursPerDay]float64 {
	var mods [HoursPerDay]float64
	for i := range mods {
		mods[i] = 1
	}
	return mods
}

func DefaultPacks() []Pack {
	return []Pack{
		{Minutes: 10, Price: 15},
		{Minutes: 30, Price: 40},
		{Minutes: 60, Price: 70},
	}
}

func DefaultMarketRate(destination string, now time.Time) MarketRate {
	return MarketRate{
		Destination:     NormalizeDestination(destination),
		RatePerMinute:   DefaultRatePerMinute,
		Packs:           DefaultPacks(),
		HourlyModifiers: NeutralHourlyModifiers(),
		UpdatedAt:       now,
	}
}

// Modifier returns the multiplier for the local wall-clock hour of at.
func (r MarketRate) Modifier(at time.Time) float64 {
	mod := r.HourlyModifiers[at.Hour()]
	if mod < 0 || math.IsNaN(mod) {
		return 1
	}
	return mod
}

func (r MarketRate) EffectiveRate(at time.Time) float64 {
	return r.RatePerMinute * r.Modifier(at)
}

func (r MarketRate) Pack(minutes int) (Pack, bool) {
	for _, pack := range r.Packs {
		if pack.Minutes == minutes {
			return pack, true
		}
	}
	return Pack{}, false
}

func (r MarketRate) Validate() error {
	if strings.TrimSpace(r.Destination) == "" {
		return ErrInvalidDestination
	}
	if math.IsNaN(r.RatePerMinute) || math.IsInf(r.RatePerMinute, 0) || r.RatePerMinute < 0 {
		return fmt.Errorf("%w: rate per minute %v", ErrInvalidMarketRate, r.RatePerMinute)
	}
	for _, pack := range r.Packs {
		if pack.Minutes <= 0 || pack.Price <= 0 {
			return fmt.Errorf("%w: pack %dm/%d", ErrInvalidMarketRate, pack.Minutes, pack.Price)
		}
	}
	for hour, mod := range r.HourlyModifiers {
		if math.IsNaN(mod) || math.IsInf(mod, 0) || mod < 0 {
			return fmt.Errorf("%w: hour %d modifier %v", ErrInvalidMarketRate, hour, mod)
		}
	}

	return nil
}

// NormalizePacks sorts packs by duration and keeps the first entry per duration.
func (r *MarketRate) NormalizePacks() {
	if r == nil {
		return
	}

	packs := make([]Pack, 0, len(r.Packs))
	seen := make(map[int]struct{}, len(r.Packs))
	for _, pack := range r.Packs {
		if _, ok := seen[pack.Minutes]; ok {
			continue
		}
		seen[pack.Minutes] = struct{}{}
		packs = append(packs, pack)
	}
	sort.SliceStable(packs, func(i, j int) bool { return packs[i].Minutes < packs[j].Minutes })

	r.Packs = packs
}
