package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidateLedgerConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     LedgerConfig
		wantErr bool
	}{
		{
			name: "fees disabled without recipient",
			cfg:  LedgerConfig{EscrowPeriod: time.Hour},
		},
		{
			name: "fees enabled with recipient",
			cfg:  LedgerConfig{EscrowPeriod: time.Hour, FeeBasisPoints: 50, FeeRecipient: "0xfee"},
		},
		{
			name:    "fees enabled without recipient",
			cfg:     LedgerConfig{EscrowPeriod: time.Hour, FeeBasisPoints: 50},
			wantErr: true,
		},
		{
			name:    "fee at 100 percent",
			cfg:     LedgerConfig{EscrowPeriod: time.Hour, FeeBasisPoints: MaxFeeBasisPoints, FeeRecipient: "0xfee"},
			wantErr: true,
		},
		{
			name:    "non-positive escrow period",
			cfg:     LedgerConfig{},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateLedgerConfig(tc.cfg)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLedgerConfigHolderStoreNotifiesListeners(t *testing.T) {
	holder, err := NewStaticLedgerConfigHolder(LedgerConfig{EscrowPeriod: time.Hour})
	require.NoError(t, err)

	var seen []time.Duration
	holder.OnChange(func(cfg LedgerConfig) {
		seen = append(seen, cfg.EscrowPeriod)
	})

	holder.Store(LedgerConfig{EscrowPeriod: 2 * time.Hour})

	assert.Equal(t, 2*time.Hour, holder.Get().EscrowPeriod)
	assert.Equal(t, []time.Duration{2 * time.Hour}, seen)
}

func TestResolverAddressesSkipsInvalid(t *testing.T) {
	cfg := LedgerConfig{Resolvers: []string{" 0xAA ", "", "0x0000"}}
	got := cfg.ResolverAddresses()
	require.Len(t, got, 1)
	assert.Equal(t, "0xaa", got[0].String())
}

func TestNewLedgerConfigHolderDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewLedgerConfigHolder(zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, DefaultEscrowPeriod, cfg.EscrowPeriod)
	assert.Zero(t, cfg.FeeBasisPoints)
	assert.False(t, cfg.AllowThirdPartyPayment)
	assert.NoError(t, ValidateLedgerConfig(DefaultLedgerConfig()))
}

func TestNewLedgerConfigHolderReadsEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FREYA_LEDGER_FEE_RECIPIENT", "0xABC0000000000000000000000000000000000001")
	t.Setenv("FREYA_LEDGER_FEE_BASIS_POINTS", "50")
	t.Setenv("FREYA_LEDGER_ESCROW_PERIOD", "48h")
	t.Setenv("FREYA_LEDGER_ALLOW_THIRD_PARTY_PAYMENT", "true")

	holder, err := NewLedgerConfigHolder(zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, int64(50), cfg.FeeBasisPoints)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", cfg.FeeRecipientAddress().String())
	assert.Equal(t, 48*time.Hour, cfg.EscrowPeriod)
	assert.True(t, cfg.AllowThirdPartyPayment)
}

func TestNewLedgerConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	body := "ledger:\n  escrow_period: 24h\n  fee_basis_points: 100\n  fee_recipient: \"0xfee\"\n  resolvers: [\"0xaa\"]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledger.yml"), []byte(body), 0o600))

	holder, err := NewLedgerConfigHolder(zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 24*time.Hour, cfg.EscrowPeriod)
	assert.Equal(t, int64(100), cfg.FeeBasisPoints)
	assert.Equal(t, "0xfee", cfg.FeeRecipient)
	assert.Len(t, cfg.ResolverAddresses(), 1)
}
