package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRules_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	content := "delivery_fee: 1.75\nservice_fee_rate: 0.05\ntax_rate: 0.16\ndelivery_per_seller: true\ncurrency: KES\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)

	assert.Equal(t, "1.75", rules.DeliveryFee.StringFixed(2))
	assert.Equal(t, "0.05", rules.ServiceFeeRate.String())
	assert.Equal(t, "0.16", rules.TaxRate.String())
	assert.True(t, rules.DeliveryPerSeller)
	assert.Equal(t, "KES", rules.Currency)
}

func TestLoadRules_Env(t *testing.T) {
	t.Setenv("DELIVERY_FEE", "3")
	t.Setenv("SERVICE_FEE_RATE", "")
	t.Setenv("TAX_RATE", "0.1")

	rules, err := LoadRules("")
	require.NoError(t, err)

	assert.Equal(t, "3.00", rules.DeliveryFee.StringFixed(2))
	assert.Equal(t, "0.03", rules.ServiceFeeRate.String())
	assert.Equal(t, "0.1", rules.TaxRate.String())
}

func TestLoadRules_Invalid(t *testing.T) {
	t.Setenv("DELIVERY_FEE", "abc")
	_, err := LoadRules("")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tax_rate: -1\n"), 0o600))
	_, err = LoadRules(path)
	assert.Error(t, err)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
