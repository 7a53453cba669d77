package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Customers    int
	Orders       int
	Seed         int64
	DropExisting bool
}

func DefaultConfig() Config {
	return Config{
		Customers: 50,
		Orders:    500,
		Seed:      time.Now().UTC().UnixNano(),
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyInt(lookup, "ASKDB_DEMO_CUSTOMERS", &cfg.Customers); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKDB_DEMO_ORDERS", &cfg.Orders); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "ASKDB_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKDB_DEMO_DROP_EXISTING", &cfg.DropExisting); err != nil {
		return Config{}, err
	}

	if cfg.Customers <= 0 {
		return Config{}, fmt.Errorf("ASKDB_DEMO_CUSTOMERS must be > 0")
	}
	if cfg.Orders < 0 {
		return Config{}, fmt.Errorf("ASKDB_DEMO_ORDERS must be >= 0")
	}
	return cfg, nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
