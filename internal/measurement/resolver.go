package measurement

import (
	"github.com/openbilling/credits/internal/metric"
	"go.uber.org/zap"
)

// Resolver turns raw line-protocol records into billable samples.
type Resolver struct {
	registry  *metric.Registry
	allowlist map[string]struct{}
	log       *zap.Logger
}

func NewResolver(registry *metric.Registry, allowlist map[string]struct{}, log *zap.Logger) *Resolver {
	return &Resolver{
		registry:  registry,
		allowlist: allowlist,
		log:       log,
	}
}

// Resolve decodes the line and binds it to its registry metric. It
// returns (nil, nil) for lines this service does not bill: measurements
// absent from the registry and projects outside the allow-list. A
// malformed billable line is an error.
func (r *Resolver) Resolve(line string) (*Sample, error) {
	name := MeasurementName(line)
	if !r.registry.Contains(name) {
		r.log.Debug("measurement not billable", zap.String("measurement", name))
		return nil, nil
	}

	sample, err := Decode(line)
	if err != nil {
		return nil, err
	}

	if len(r.allowlist) > 0 {
		if _, ok := r.allowlist[sample.Entity]; !ok {
			r.log.Debug("project not in allowlist", zap.String("project", sample.Entity))
			return nil, nil
		}
	}

	m, err := r.registry.Lookup(sample.MetricName)
	if err != nil {
		return nil, err
	}
	sample.Metric = m

	return sample, nil
}
