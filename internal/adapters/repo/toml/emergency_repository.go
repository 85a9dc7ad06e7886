package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/bnema/focuscoin/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	emergencyPathKey  = "emergency.path"
	emergencyFileName = "emergency.toml"
)

// EmergencyRepository stores the selected policy and today's usage.
type EmergencyRepository struct {
	path string
	mu   *sync.RWMutex
}

var _ ports.EmergencyRepository = (*EmergencyRepository)(nil)

func NewEmergencyRepository(cfg *viper.Viper) (*EmergencyRepository, error) {
	path, err := resolvePath(cfg, emergencyPathKey, emergencyFileName)
	if err != nil {
		return nil, err
	}

	return &EmergencyRepository{path: path, mu: lockForPath(path)}, nil
}

func (r *EmergencyRepository) Usage(ctx context.Context) (domain.EmergencyUsage, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmergencyUsage{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.EmergencyUsage{}, err
	}

	return domain.EmergencyUsage{
		Day:           file.Usage.Day,
		TokensUsed:    file.Usage.TokensUsed,
		CooldownUntil: parseTime(file.Usage.CooldownUntil),
	}, nil
}

func (r *EmergencyRepository) SaveUsage(ctx context.Context, usage domain.EmergencyUsage) error {
	return r.update(ctx, func(file *emergencyFileSchema) {
		file.Usage = usageSchema{
			Day:           usage.Day,
			TokensUsed:    usage.TokensUsed,
			CooldownUntil: formatTime(usage.CooldownUntil),
		}
	})
}

// Policy returns an empty id when no policy has been selected.
func (r *EmergencyRepository) Policy(ctx context.Context) (domain.EmergencyPolicyID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return "", err
	}

	return domain.EmergencyPolicyID(file.Policy), nil
}

func (r *EmergencyRepository) SavePolicy(ctx context.Context, id domain.EmergencyPolicyID) error {
	return r.update(ctx, func(file *emergencyFileSchema) {
		file.Policy = string(id)
	})
}

func (r *EmergencyRepository) update(ctx context.Context, mutate func(*emergencyFileSchema)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	mutate(&file)
	file.applyDefaults()

	return writeTOMLFile(r.path, file)
}

func (r *EmergencyRepository) readSchema() (emergencyFileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return emergencyFileSchema{}, nil
		}
		return emergencyFileSchema{}, fmt.Errorf("read emergency file: %w", err)
	}

	var file emergencyFileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return emergencyFileSchema{}, fmt.Errorf("decode emergency file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return emergencyFileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}
