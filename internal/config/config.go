// Package config loads the tanaste configuration manifest.
//
// The manifest is a single JSON file. Every key has a default so a minimal
// manifest only needs databasePath and the ingestion roots. Environment
// variables prefixed TANASTE_ override file values (TANASTE_DATABASEPATH,
// TANASTE_INGESTION_WATCHDIRECTORY, ...).
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Ingestion holds the pipeline settings.
type Ingestion struct {
	WatchDirectory       string `mapstructure:"watchDirectory"`
	LibraryRoot          string `mapstructure:"libraryRoot"`
	AutoOrganize         bool   `mapstructure:"autoOrganize"`
	WriteBack            bool   `mapstructure:"writeBack"`
	OrganizationTemplate string `mapstructure:"organizationTemplate"`
	SettleMillis         int    `mapstructure:"settleMillis"`
	Workers              int    `mapstructure:"workers"`
}

// Scoring holds the weighted-vote thresholds.
type Scoring struct {
	AutoLinkThreshold     float64 `mapstructure:"autoLinkThreshold"`
	ConflictThreshold     float64 `mapstructure:"conflictThreshold"`
	ConflictEpsilon       float64 `mapstructure:"conflictEpsilon"`
	StaleClaimDecayDays   int     `mapstructure:"staleClaimDecayDays"`
	StaleClaimDecayFactor float64 `mapstructure:"staleClaimDecayFactor"`
}

// Maintenance holds startup housekeeping switches.
type Maintenance struct {
	VacuumOnStartup bool `mapstructure:"vacuumOnStartup"`
}

// Provider is one entry of the providers array.
type Provider struct {
	Name         string             `mapstructure:"name"`
	Enabled      bool               `mapstructure:"enabled"`
	Weight       float64            `mapstructure:"weight"`
	FieldWeights map[string]float64 `mapstructure:"field_weights"`
}

// Manifest is the full configuration manifest.
type Manifest struct {
	DatabasePath      string            `mapstructure:"databasePath"`
	DataRoot          string            `mapstructure:"dataRoot"`
	Ingestion         Ingestion         `mapstructure:"ingestion"`
	Scoring           Scoring           `mapstructure:"scoring"`
	Maintenance       Maintenance       `mapstructure:"maintenance"`
	ProviderEndpoints map[string]string `mapstructure:"provider_endpoints"`
	Providers         []Provider        `mapstructure:"providers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("databasePath", "tanaste.db")
	v.SetDefault("dataRoot", ".")
	v.SetDefault("ingestion.autoOrganize", true)
	v.SetDefault("ingestion.writeBack", false)
	v.SetDefault("ingestion.organizationTemplate", "{Category}/{HubName} ({Year})/{Format} - Standard")
	v.SetDefault("ingestion.settleMillis", 500)
	v.SetDefault("ingestion.workers", runtime.NumCPU())
	v.SetDefault("scoring.autoLinkThreshold", 0.85)
	v.SetDefault("scoring.conflictThreshold", 0.60)
	v.SetDefault("scoring.conflictEpsilon", 0.10)
	v.SetDefault("scoring.staleClaimDecayDays", 90)
	v.SetDefault("scoring.staleClaimDecayFactor", 0.5)
	v.SetDefault("maintenance.vacuumOnStartup", false)
}

// Load reads the manifest at path. A missing file is an error; the caller
// decides whether to fall back to Default().
func Load(path string) (*Manifest, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("TANASTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var m Manifest
	if err := v.Unmarshal(&m); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Default returns a manifest with every key at its default value.
func Default() *Manifest {
	v := viper.New()
	setDefaults(v)
	var m Manifest
	// Defaults always unmarshal cleanly.
	_ = v.Unmarshal(&m)
	return &m
}

// Validate checks invariants the rest of the engine relies on.
func (m *Manifest) Validate() error {
	if m.DatabasePath == "" {
		return fmt.Errorf("config: databasePath is required")
	}
	s := m.Scoring
	for _, c := range []struct {
		name  string
		value float64
	}{
		{"scoring.autoLinkThreshold", s.AutoLinkThreshold},
		{"scoring.conflictThreshold", s.ConflictThreshold},
	} {
		if c.value < 0 || c.value > 1 {
			return fmt.Errorf("config: %s %v out of [0,1]", c.name, c.value)
		}
	}
	if s.StaleClaimDecayFactor <= 0 || s.StaleClaimDecayFactor > 1 {
		return fmt.Errorf("config: scoring.staleClaimDecayFactor %v out of (0,1]", s.StaleClaimDecayFactor)
	}
	if m.Ingestion.Workers < 0 {
		return fmt.Errorf("config: ingestion.workers must be >= 0")
	}
	return nil
}

// WorkerCount returns the configured pipeline parallelism, defaulting to
// the core count when unset.
func (m *Manifest) WorkerCount() int {
	if m.Ingestion.Workers > 0 {
		return m.Ingestion.Workers
	}
	return runtime.NumCPU()
}

// EndpointFor resolves a provider's base URL from the manifest, empty when
// unconfigured.
func (m *Manifest) EndpointFor(name string) string {
	return m.ProviderEndpoints[name]
}

// ProviderWeights returns the global provider weight map from the providers
// array. Disabled providers are omitted so the scorer never counts them.
func (m *Manifest) ProviderWeights() map[string]float64 {
	weights := make(map[string]float64, len(m.Providers))
	for _, p := range m.Providers {
		if !p.Enabled {
			continue
		}
		w := p.Weight
		if w <= 0 || w > 1 {
			w = 1.0
		}
		weights[p.Name] = w
	}
	return weights
}

// ProviderFieldWeights returns per-field weight overrides keyed by provider.
func (m *Manifest) ProviderFieldWeights() map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	for _, p := range m.Providers {
		if !p.Enabled || len(p.FieldWeights) == 0 {
			continue
		}
		fw := make(map[string]float64, len(p.FieldWeights))
		for k, w := range p.FieldWeights {
			fw[k] = w
		}
		out[p.Name] = fw
	}
	return out
}
