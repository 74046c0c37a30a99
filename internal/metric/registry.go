package metric

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ErrUnknownMetric reports a measurement name absent from the registry.
var ErrUnknownMetric = errors.New("unknown metric")

// Metric describes one billable measurement.
type Metric struct {
	// Name is the measurement name on the wire.
	Name string
	// FriendlyName is the short name used in reports and history rows.
	FriendlyName string
	// CostPerHour is the credit cost of one usage unit.
	CostPerHour decimal.Decimal
	Description string
}

// Registry maps measurement names to billable metrics. Populated once at
// startup; read-only afterwards.
type Registry struct {
	byName map[string]Metric
}

type fileEntry struct {
	Name         string `mapstructure:"name"`
	FriendlyName string `mapstructure:"friendly_name"`
	CostPerHour  string `mapstructure:"cost_per_hour"`
	Description  string `mapstructure:"description"`
}

// Load reads the metric registry from the given YAML file. A missing file
// yields the built-in defaults so a bare checkout still bills vCPU and RAM
// usage.
func Load(path string, log *zap.Logger) (*Registry, error) {
	if _, err := os.Stat(path); err != nil {
		if log != nil {
			log.Info("metrics file not found, using built-in registry", zap.String("path", path))
		}
		return defaults(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read metrics file %s: %w", path, err)
	}

	var entries []fileEntry
	if err := v.UnmarshalKey("metrics", &entries); err != nil {
		return nil, fmt.Errorf("parse metrics file %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("metrics file %s defines no metrics", path)
	}

	reg := &Registry{byName: make(map[string]Metric, len(entries))}
	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("metrics file %s: metric with empty name", path)
		}
		if _, dup := reg.byName[e.Name]; dup {
			return nil, fmt.Errorf("metrics file %s: duplicate metric %q", path, e.Name)
		}
		cost, err := decimal.NewFromString(e.CostPerHour)
		if err != nil {
			return nil, fmt.Errorf("metrics file %s: metric %q: invalid cost_per_hour %q", path, e.Name, e.CostPerHour)
		}
		if !cost.IsPositive() {
			return nil, fmt.Errorf("metrics file %s: metric %q: cost_per_hour must be positive", path, e.Name)
		}
		friendly := e.FriendlyName
		if friendly == "" {
			friendly = e.Name
		}
		reg.byName[e.Name] = Metric{
			Name:         e.Name,
			FriendlyName: friendly,
			CostPerHour:  cost,
			Description:  e.Description,
		}
	}

	if log != nil {
		log.Info("metric registry loaded", zap.String("path", path), zap.Int("metrics", len(reg.byName)))
	}
	return reg, nil
}

func defaults() *Registry {
	return &Registry{byName: map[string]Metric{
		"project_vcpu_usage": {
			Name:         "project_vcpu_usage",
			FriendlyName: "cpu",
			CostPerHour:  decimal.NewFromInt(1),
			Description:  "Accumulated vCPU hours of the project",
		},
		"project_mb_usage": {
			Name:         "project_mb_usage",
			FriendlyName: "ram",
			CostPerHour:  decimal.RequireFromString("0.3"),
			Description:  "Accumulated megabyte hours of the project",
		},
	}}
}

// Lookup returns the metric registered under the measurement name.
func (r *Registry) Lookup(name string) (Metric, error) {
	m, ok := r.byName[name]
	if !ok {
		return Metric{}, fmt.Errorf("%w: %s", ErrUnknownMetric, name)
	}
	return m, nil
}

// Contains reports whether the measurement name is billable.
func (r *Registry) Contains(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// All returns every registered metric sorted by friendly name.
func (r *Registry) All() []Metric {
	out := make([]Metric, 0, len(r.byName))
	for _, m := range r.byName {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FriendlyName < out[j].FriendlyName })
	return out
}
