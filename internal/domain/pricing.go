package domain

import (
	"fmt"
	"math"
	"strings"
)

type ColorFilter string

const (
	ColorFull      ColorFilter = "full-color"
	ColorGreyscale ColorFilter = "greyscale"
	ColorRedscale  ColorFilter = "redscale"
)

// MeteredPremium is the surcharge of metered access over the filtered base rate.
const MeteredPremium = 3.5

func ParseColorFilter(raw string) (ColorFilter, error) {
	switch ColorFilter(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ColorFull, "full", "color":
		return ColorFull, nil
	case ColorGreyscale, "grayscale", "grey", "gray":
		return ColorGreyscale, nil
	case ColorRedscale, "red":
		return ColorRedscale, nil
	default:
		return "", fmt.Errorf("unknown color filter %q", raw)
	}
}

func (f ColorFilter) Multiplier() float64 {
	switch f {
	case ColorGreyscale:
		return 0.55
	case ColorRedscale:
		return 0.70
	default:
		return 1.0
	}
}

func PackChainMultiplier(chain int) float64 {
	switch {
	case chain <= 0:
		return 1.0
	case chain == 1:
		return 1.35
	case chain == 2:
		return 1.75
	default:
		return 2.35
	}
}

// PackPrice composes the chain and colour multipliers onto a pack's base price.
func PackPrice(basePrice int64, chain int, filter ColorFilter) int64 {
	price := int64(math.Round(float64(basePrice) * PackChainMultiplier(chain) * filter.Multiplier()))
	if price < 1 {
		return 1
	}
	return price
}

// MeteredRate is the per-minute metered price before the hourly modifier.
func MeteredRate(baseRate float64, filter ColorFilter) float64 {
	return baseRate * filter.Multiplier() * MeteredPremium
}

type PackQuote struct {
	Destination string      `json:"destination"`
	Minutes     int         `json:"minutes"`
	BasePrice   int64       `json:"basePrice"`
	ChainCount  int         `json:"chainCount"`
	ColorFilter ColorFilter `json:"colorFilter"`
	Price       int64       `json:"price"`
	// EffectiveRatePerMinute is the filtered, hour-adjusted base rate at quote time.
	EffectiveRatePerMinute float64 `json:"effectiveRatePerMinute"`
}

type MeteredQuote struct {
	Destination   string      `json:"destination"`
	ColorFilter   ColorFilter `json:"colorFilter"`
	BaseRate      float64     `json:"baseRate"`
	HourModifier  float64     `json:"hourModifier"`
	RatePerMinute float64     `json:"ratePerMinute"`
}
