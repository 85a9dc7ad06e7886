package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/focuscoin/internal/application"
	"github.com/bnema/focuscoin/internal/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	configDirName  = ".focuscoin"
	configFileName = "config.toml"
	envPrefix      = "FC"
)

type config struct {
	Home            string
	ConfigPath      string
	LedgerPath      string
	DeviceID        string
	Economy         application.EconomyConfig
	EmergencyPolicy domain.EmergencyPolicyID
	SecretsBackend  string
	SecretsDir      string
	PassPrefix      string
	SyncListen      string
	SyncPeer        string
	SyncPeerURL     string
	SyncInterval    time.Duration
	MetricsListen   string
	LogLevel        string
	LogFormat       string
}

func newViper(home string) *viper.Viper {
	v := viper.New()
	base := filepath.Join(home, configDirName)

	v.SetConfigFile(filepath.Join(base, configFileName))
	v.SetConfigType("toml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := application.DefaultEconomyConfig()
	v.SetDefault("ledger.path", filepath.Join(base, "ledger.db"))
	v.SetDefault("rates.path", filepath.Join(base, "rates.toml"))
	v.SetDefault("emergency.path", filepath.Join(base, "emergency.toml"))
	v.SetDefault("emergency.policy", string(domain.EmergencyPolicyBalanced))
	v.SetDefault("economy.earn_interval", defaults.EarnInterval)
	v.SetDefault("economy.spend_interval", defaults.SpendInterval)
	v.SetDefault("economy.stale_after", defaults.StaleAfter)
	v.SetDefault("economy.reminder_interval", defaults.ReminderInterval)
	v.SetDefault("economy.productive_rate", defaults.ProductiveRate)
	v.SetDefault("economy.neutral_rate", defaults.NeutralRate)
	v.SetDefault("economy.draining_rate", defaults.DrainingRate)
	v.SetDefault("secrets.backend", "file")
	v.SetDefault("secrets.dir", filepath.Join(base, "secrets"))
	v.SetDefault("secrets.pass_prefix", "focuscoin")
	v.SetDefault("sync.interval", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	return v
}

// loadConfig reads the optional config file and assigns a device id on first run.
func loadConfig(v *viper.Viper, home string) (config, error) {
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config{}, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	for _, key := range []string{"ledger.path", "rates.path", "emergency.path", "secrets.dir"} {
		v.Set(key, expandHome(v.GetString(key), home))
	}

	policy, err := domain.LookupEmergencyPolicy(v.GetString("emergency.policy"))
	if err != nil {
		return config{}, fmt.Errorf("config emergency.policy: %w", err)
	}

	cfg := config{
		Home:       home,
		ConfigPath: v.ConfigFileUsed(),
		LedgerPath: v.GetString("ledger.path"),
		DeviceID:   strings.TrimSpace(v.GetString("device.id")),
		Economy: application.EconomyConfig{
			EarnInterval:     v.GetDuration("economy.earn_interval"),
			SpendInterval:    v.GetDuration("economy.spend_interval"),
			StaleAfter:       v.GetDuration("economy.stale_after"),
			ReminderInterval: v.GetDuration("economy.reminder_interval"),
			ProductiveRate:   v.GetFloat64("economy.productive_rate"),
			NeutralRate:      v.GetFloat64("economy.neutral_rate"),
			DrainingRate:     v.GetFloat64("economy.draining_rate"),
		},
		EmergencyPolicy: policy.ID,
		SecretsBackend:  strings.ToLower(strings.TrimSpace(v.GetString("secrets.backend"))),
		SecretsDir:      v.GetString("secrets.dir"),
		PassPrefix:      v.GetString("secrets.pass_prefix"),
		SyncListen:      v.GetString("sync.listen"),
		SyncPeer:        v.GetString("sync.peer"),
		SyncPeerURL:     v.GetString("sync.peer_url"),
		SyncInterval:    v.GetDuration("sync.interval"),
		MetricsListen:   v.GetString("metrics.listen"),
		LogLevel:        v.GetString("log.level"),
		LogFormat:       v.GetString("log.format"),
	}

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		if err := persistConfigValue(cfg.ConfigPath, "device.id", cfg.DeviceID); err != nil {
			return config{}, err
		}
		v.Set("device.id", cfg.DeviceID)
	}

	return cfg, nil
}

// persistConfigValue rewrites only the keys present in the file plus key.
func persistConfigValue(path, key string, value any) error {
	fileOnly := viper.New()
	fileOnly.SetConfigFile(path)
	fileOnly.SetConfigType("toml")
	if err := fileOnly.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	fileOnly.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := fileOnly.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(home, rest)
	}
	return path
}

func newLogger(cfg config) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config log.level: %w", err)
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.LogFormat) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("config log.format: unknown format %q", cfg.LogFormat)
	}

	return log, nil
}
