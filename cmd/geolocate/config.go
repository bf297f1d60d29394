// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/pdiddy/geolocate/pkg/types"
)

// envPrefix namespaces environment overrides: search.grid_spacing is read
// from GEOLOCATE_SEARCH_GRID_SPACING.
const envPrefix = "GEOLOCATE"

func configureEnv() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// loadConfig overlays the config file and environment on the defaults,
// fills credentials from secrets, and validates the result.
func loadConfig() (types.Config, error) {
	cfg := types.DefaultConfig()

	// Unmarshal only sees keys viper knows about, so every configuration key
	// is bound to its environment variable first.
	for _, key := range configKeys(reflect.TypeOf(cfg), "") {
		if err := viper.BindEnv(key); err != nil {
			return cfg, fmt.Errorf("binding %s: %w", key, err)
		}
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}

	if cfg.Google.APIKey == "" {
		cfg.Google.APIKey = loadedSecrets.Get(secretGoogle)
	}
	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = loadedSecrets.Get(secretAnthropic)
	}
	if cfg.Redis.Password == "" {
		cfg.Redis.Password = loadedSecrets.Get(secretRedis)
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DSN == "" {
		cfg.Store.DSN = loadedSecrets.Get(secretPostgres)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// configKeys lists the dotted mapstructure keys of every leaf field of t.
// Squashed embedded structs contribute their fields to the parent.
func configKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			continue
		}
		if f.Type.Kind() == reflect.Struct && (f.Anonymous || strings.Contains(opts, "squash")) {
			keys = append(keys, configKeys(f.Type, prefix)...)
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		key := prefix + name
		if f.Type.Kind() == reflect.Struct {
			keys = append(keys, configKeys(f.Type, key+".")...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}
