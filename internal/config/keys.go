package config

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

type field struct {
	get func(*Config) string
	set func(*Config, string) error
}

func stringField(ptr func(*Config) *string) field {
	return field{
		get: func(c *Config) string { return *ptr(c) },
		set: func(c *Config, v string) error { *ptr(c) = v; return nil },
	}
}

func boolField(ptr func(*Config) *bool) field {
	return field{
		get: func(c *Config) string { return strconv.FormatBool(*ptr(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean %q", v)
			}
			*ptr(c) = b
			return nil
		},
	}
}

func durationField(ptr func(*Config) *time.Duration) field {
	return field{
		get: func(c *Config) string { return ptr(c).String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration %q", v)
			}
			*ptr(c) = d
			return nil
		},
	}
}

var fields = map[string]field{
	"api.base_url":                  stringField(func(c *Config) *string { return &c.API.BaseURL }),
	"api.timeout":                   durationField(func(c *Config) *time.Duration { return &c.API.Timeout }),
	"realtime.base_url":             stringField(func(c *Config) *string { return &c.Realtime.BaseURL }),
	"realtime.path":                 stringField(func(c *Config) *string { return &c.Realtime.Path }),
	"realtime.reconnect":            boolField(func(c *Config) *bool { return &c.Realtime.Reconnect }),
	"realtime.max_backoff":          durationField(func(c *Config) *time.Duration { return &c.Realtime.MaxBackoff }),
	"session.reconnect_on_rotation": boolField(func(c *Config) *bool { return &c.Session.ReconnectOnRotation }),
	"store.backend":                 stringField(func(c *Config) *string { return &c.Store.Backend }),
	"store.path":                    stringField(func(c *Config) *string { return &c.Store.Path }),
	"store.passphrase_env":          stringField(func(c *Config) *string { return &c.Store.PassphraseEnv }),
	"store.redis_url":               stringField(func(c *Config) *string { return &c.Store.RedisURL }),
	"store.namespace":               stringField(func(c *Config) *string { return &c.Store.Namespace }),
	"store.vault_address":           stringField(func(c *Config) *string { return &c.Store.VaultAddress }),
	"store.vault_token":             stringField(func(c *Config) *string { return &c.Store.VaultToken }),
	"store.vault_mount":             stringField(func(c *Config) *string { return &c.Store.VaultMount }),
	"store.vault_path":              stringField(func(c *Config) *string { return &c.Store.VaultPath }),
	"log.level":                     stringField(func(c *Config) *string { return &c.Log.Level }),
	"log.format":                    stringField(func(c *Config) *string { return &c.Log.Format }),
	"telemetry.enabled":             boolField(func(c *Config) *bool { return &c.Telemetry.Enabled }),
	"telemetry.endpoint":            stringField(func(c *Config) *string { return &c.Telemetry.Endpoint }),
	"telemetry.sample_rate": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Telemetry.SampleRate, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid number %q", v)
			}
			c.Telemetry.SampleRate = f
			return nil
		},
	},
	"metrics.addr": stringField(func(c *Config) *string { return &c.Metrics.Addr }),
}

// Keys lists every dotted key accepted by Get and Set.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of a dotted key, e.g. "api.base_url".
func (c *Config) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return f.get(c), nil
}

// Set assigns a dotted key and re-validates the result. On validation failure
// the previous value is restored.
func (c *Config) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	prev := f.get(c)
	if err := f.set(c, value); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		_ = f.set(c, prev)
		return err
	}
	return nil
}
