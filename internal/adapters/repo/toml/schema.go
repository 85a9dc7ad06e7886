package toml

import "fmt"

const currentSchemaVersion = 1

type ratesFileSchema struct {
	Version int          `toml:"version"`
	Rates   []rateSchema `toml:"rates"`
}

func (s *ratesFileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s ratesFileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported rates schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type rateSchema struct {
	Destination     string       `toml:"destination"`
	RatePerMinute   float64      `toml:"rate_per_minute"`
	Packs           []packSchema `toml:"packs"`
	HourlyModifiers []float64    `toml:"hourly_modifiers,omitempty"`
	UpdatedAt       string       `toml:"updated_at,omitempty"`
}

type packSchema struct {
	Minutes int   `toml:"minutes"`
	Price   int64 `toml:"price"`
}

type emergencyFileSchema struct {
	Version int         `toml:"version"`
	Policy  string      `toml:"policy,omitempty"`
	Usage   usageSchema `toml:"usage"`
}

func (s *emergencyFileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s emergencyFileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported emergency schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type usageSchema struct {
	Day           string `toml:"day"`
	TokensUsed    int    `toml:"tokens_used"`
	CooldownUntil string `toml:"cooldown_until,omitempty"`
}
