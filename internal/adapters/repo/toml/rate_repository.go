package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/bnema/focuscoin/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	ratesPathKey  = "rates.path"
	ratesFileName = "rates.toml"
)

// RateRepository keeps market rates in a user-editable rates.toml.
type RateRepository struct {
	path string
	mu   *sync.RWMutex
}

var _ ports.MarketRateRepository = (*RateRepository)(nil)

func NewRateRepository(cfg *viper.Viper) (*RateRepository, error) {
	path, err := resolvePath(cfg, ratesPathKey, ratesFileName)
	if err != nil {
		return nil, err
	}

	return &RateRepository{path: path, mu: lockForPath(path)}, nil
}

func (r *RateRepository) Path() string {
	return r.path
}

func (r *RateRepository) GetByDestination(ctx context.Context, destination string) (domain.MarketRate, error) {
	if err := ctx.Err(); err != nil {
		return domain.MarketRate{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.MarketRate{}, err
	}

	dest := domain.NormalizeDestination(destination)
	for _, entry := range file.Rates {
		if domain.NormalizeDestination(entry.Destination) == dest {
			return fromRateSchema(entry), nil
		}
	}

	return domain.MarketRate{}, domain.ErrRateNotConfigured
}

func (r *RateRepository) List(ctx context.Context) ([]domain.MarketRate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	rates := make([]domain.MarketRate, 0, len(file.Rates))
	for _, entry := range file.Rates {
		rates = append(rates, fromRateSchema(entry))
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].Destination < rates[j].Destination })

	return rates, nil
}

func (r *RateRepository) Save(ctx context.Context, rate domain.MarketRate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	encoded := toRateSchema(rate)
	updated := false
	for i := range file.Rates {
		if domain.NormalizeDestination(file.Rates[i].Destination) == encoded.Destination {
			file.Rates[i] = encoded
			updated = true
			break
		}
	}
	if !updated {
		file.Rates = append(file.Rates, encoded)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	file.applyDefaults()
	return writeTOMLFile(r.path, file)
}

func (r *RateRepository) readSchema() (ratesFileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ratesFileSchema{}, nil
		}
		return ratesFileSchema{}, fmt.Errorf("read rates file: %w", err)
	}

	var file ratesFileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return ratesFileSchema{}, fmt.Errorf("decode rates file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return ratesFileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func toRateSchema(rate domain.MarketRate) rateSchema {
	packs := make([]packSchema, 0, len(rate.Packs))
	for _, pack := range rate.Packs {
		packs = append(packs, packSchema{Minutes: pack.Minutes, Price: pack.Price})
	}

	var modifiers []float64
	if rate.HourlyModifiers != domain.NeutralHourlyModifiers() {
		modifiers = rate.HourlyModifiers[:]
	}

	return rateSchema{
		Destination:     domain.NormalizeDestination(rate.Destination),
		RatePerMinute:   rate.RatePerMinute,
		Packs:           packs,
		HourlyModifiers: modifiers,
		UpdatedAt:       formatTime(rate.UpdatedAt),
	}
}

// fromRateSchema fills hours missing from a short hourly_modifiers list with 1.
func fromRateSchema(entry rateSchema) domain.MarketRate {
	rate := domain.MarketRate{
		Destination:     domain.NormalizeDestination(entry.Destination),
		RatePerMinute:   entry.RatePerMinute,
		HourlyModifiers: domain.NeutralHourlyModifiers(),
		UpdatedAt:       parseTime(entry.UpdatedAt),
	}
	for i, mod := range entry.HourlyModifiers {
		if i >= domain.HoursPerDay {
			break
		}
		rate.HourlyModifiers[i] = mod
	}
	for _, pack := range entry.Packs {
		rate.Packs = append(rate.Packs, domain.Pack{Minutes: pack.Minutes, Price: pack.Price})
	}

	return rate
}
