package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/freya/pkg/address"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	DefaultEscrowPeriod   = 7 * 24 * time.Hour
	// Fees stay off until a recipient is configured alongside a rate.
	DefaultFeeBasisPoints = 0
	MaxFeeBasisPoints     = 10_000
)

// LedgerConfig holds the settlement policy. It is hot-reloaded from ledger.yml.
type LedgerConfig struct {
	EscrowPeriod           time.Duration `mapstructure:"escrow_period"`
	FeeBasisPoints         int64         `mapstructure:"fee_basis_points"`
	FeeRecipient           string        `mapstructure:"fee_recipient"`
	Owner                  string        `mapstructure:"owner"`
	Resolvers              []string      `mapstructure:"resolvers"`
	AllowThirdPartyPayment bool          `mapstructure:"allow_third_party_payment"`
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		EscrowPeriod:   DefaultEscrowPeriod,
		FeeBasisPoints: DefaultFeeBasisPoints,
	}
}

func (c LedgerConfig) FeeRecipientAddress() address.Address {
	return address.Parse(c.FeeRecipient)
}

func (c LedgerConfig) OwnerAddress() address.Address {
	return address.Parse(c.Owner)
}

func (c LedgerConfig) ResolverAddresses() []address.Address {
	out := make([]address.Address, 0, len(c.Resolvers))
	for _, raw := range c.Resolvers {
		addr := address.Parse(raw)
		if addr.Valid() {
			out = append(out, addr)
		}
	}
	return out
}

type LedgerConfigHolder struct {
	current atomic.Value // holds LedgerConfig

	mu        sync.Mutex
	listeners []func(LedgerConfig)
}

// NewStaticLedgerConfigHolder returns a holder that never reloads.
func NewStaticLedgerConfigHolder(cfg LedgerConfig) (*LedgerConfigHolder, error) {
	if err := ValidateLedgerConfig(cfg); err != nil {
		return nil, err
	}
	holder := &LedgerConfigHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

func NewLedgerConfigHolder(log *zap.Logger) (*LedgerConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.ledger")

	v := viper.New()

	v.SetConfigName("ledger")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/freya/config")
	v.AddConfigPath("/etc/freya")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FREYA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLedgerConfig()
	for key, value := range map[string]any{
		"ledger.escrow_period":             defaults.EscrowPeriod,
		"ledger.fee_basis_points":          defaults.FeeBasisPoints,
		"ledger.fee_recipient":             "",
		"ledger.owner":                     "",
		"ledger.resolvers":                 []string{},
		"ledger.allow_third_party_payment": false,
	} {
		v.SetDefault(key, value)
		// Nested keys are only resolved from the environment once bound.
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeLedgerConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &LedgerConfigHolder{}
	holder.current.Store(cfg)

	if !fileFound {
		log.Info("ledger config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeLedgerConfig(v)
		if err != nil {
			log.Warn("ledger config reload ignored", zap.Error(err))
			return
		}
		holder.Store(updated)
		log.Info("ledger config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// decodeLedgerConfig unmarshals the whole tree rather than the ledger subtree
// so env values bound to leaf keys take part.
func decodeLedgerConfig(v *viper.Viper) (LedgerConfig, error) {
	var root struct {
		Ledger LedgerConfig `mapstructure:"ledger"`
	}
	if err := v.Unmarshal(&root); err != nil {
		return LedgerConfig{}, err
	}
	if err := ValidateLedgerConfig(root.Ledger); err != nil {
		return LedgerConfig{}, err
	}
	return root.Ledger, nil
}

func (h *LedgerConfigHolder) Get() LedgerConfig {
	return h.current.Load().(LedgerConfig)
}

// Store replaces the active config and notifies listeners.
func (h *LedgerConfigHolder) Store(cfg LedgerConfig) {
	h.current.Store(cfg)

	h.mu.Lock()
	listeners := append([]func(LedgerConfig){}, h.listeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

// OnChange registers fn to run after every successful reload.
func (h *LedgerConfigHolder) OnChange(fn func(LedgerConfig)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

func ValidateLedgerConfig(cfg LedgerConfig) error {
	if cfg.EscrowPeriod <= 0 {
		return errors.New("ledger.escrow_period must be positive")
	}
	if cfg.FeeBasisPoints < 0 || cfg.FeeBasisPoints >= MaxFeeBasisPoints {
		return fmt.Errorf("ledger.fee_basis_points must be in [0, %d)", MaxFeeBasisPoints)
	}
	if cfg.FeeBasisPoints > 0 && !cfg.FeeRecipientAddress().Valid() {
		return errors.New("ledger.fee_recipient is required when fees are enabled")
	}
	return nil
}
