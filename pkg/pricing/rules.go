package pricing

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// LoadRules reads fee rules from a YAML file. With an empty path the rules
// come from DELIVERY_FEE, SERVICE_FEE_RATE, TAX_RATE and CURRENCY, falling
// back to DefaultRules for anything unset.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Rules{}, fmt.Errorf("read pricing rules: %w", err)
		}
		if err := yaml.Unmarshal(data, &rules); err != nil {
			return Rules{}, fmt.Errorf("parse pricing rules: %w", err)
		}
	} else {
		var err error
		if rules.DeliveryFee, err = envDecimal("DELIVERY_FEE", rules.DeliveryFee); err != nil {
			return Rules{}, err
		}
		if rules.ServiceFeeRate, err = envDecimal("SERVICE_FEE_RATE", rules.ServiceFeeRate); err != nil {
			return Rules{}, err
		}
		if rules.TaxRate, err = envDecimal("TAX_RATE", rules.TaxRate); err != nil {
			return Rules{}, err
		}
		if v := os.Getenv("CURRENCY"); v != "" {
			rules.Currency = v
		}
	}

	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func envDecimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
