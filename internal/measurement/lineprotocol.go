package measurement

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openbilling/credits/internal/metric"
	"github.com/shopspring/decimal"
)

// ErrMalformedLine reports a line-protocol record that cannot be decoded.
var ErrMalformedLine = errors.New("malformed line protocol")

// Sample is one decoded usage measurement. Immutable once decoded; the
// Metric binding is added by the resolver.
type Sample struct {
	// MetricName is the measurement name on the wire.
	MetricName string
	// Entity is the billed project, from the project_name tag.
	Entity     string
	LocationID string
	// Timestamp carries nanosecond resolution on the wire, UTC.
	Timestamp time.Time
	// Value is the accumulated usage total at Timestamp.
	Value decimal.Decimal

	Metric metric.Metric
}

// Each decodable attribute is declared once here: where it comes from
// (tag or field), its wire key, whether it may be omitted, and how its
// raw string lands on the sample.
type column struct {
	tag      bool
	key      string
	optional bool
	assign   func(*Sample, string) error
}

var schema = []column{
	{tag: true, key: "project_name", assign: func(s *Sample, v string) error {
		if v == "" {
			return errors.New("project_name tag is empty")
		}
		s.Entity = v
		return nil
	}},
	{tag: true, key: "location_id", optional: true, assign: func(s *Sample, v string) error {
		s.LocationID = v
		return nil
	}},
	{tag: false, key: "value", assign: func(s *Sample, v string) error {
		value, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("value field %q: %w", v, err)
		}
		if value.IsNegative() {
			return fmt.Errorf("value field %q is negative", v)
		}
		s.Value = value
		return nil
	}},
}

// MeasurementName returns the measurement name of a raw line without a
// full decode. Used as the cheap registry pre-check on the hot path.
func MeasurementName(line string) string {
	end := len(line)
	if i := strings.IndexByte(line, ','); i >= 0 {
		end = i
	}
	if i := strings.IndexByte(line, ' '); i >= 0 && i < end {
		end = i
	}
	return line[:end]
}

// Decode parses one line-protocol record:
//
//	name[,tag=v...] field=v[,field=v...] timestamp-ns
func Decode(line string) (*Sample, error) {
	line = strings.TrimSpace(line)
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 sections, got %d", ErrMalformedLine, len(parts))
	}

	nameAndTags := strings.Split(parts[0], ",")
	name := nameAndTags[0]
	if name == "" {
		return nil, fmt.Errorf("%w: empty measurement name", ErrMalformedLine)
	}

	tags, err := decodePairs(nameAndTags[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: tags: %v", ErrMalformedLine, err)
	}
	fields, err := decodePairs(strings.Split(parts[1], ","))
	if err != nil {
		return nil, fmt.Errorf("%w: fields: %v", ErrMalformedLine, err)
	}

	ns, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp %q", ErrMalformedLine, parts[2])
	}

	sample := &Sample{
		MetricName: name,
		Timestamp:  time.Unix(0, ns).UTC(),
	}
	for _, col := range schema {
		source := fields
		if col.tag {
			source = tags
		}
		raw, ok := source[col.key]
		if !ok {
			if col.optional {
				continue
			}
			kind := "field"
			if col.tag {
				kind = "tag"
			}
			return nil, fmt.Errorf("%w: missing %s %q", ErrMalformedLine, kind, col.key)
		}
		if err := col.assign(sample, raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedLine, err)
		}
	}

	return sample, nil
}

// Encode renders the sample back to its wire form.
func (s *Sample) Encode() string {
	var b strings.Builder
	b.WriteString(s.MetricName)
	b.WriteString(",project_name=")
	b.WriteString(s.Entity)
	if s.LocationID != "" {
		b.WriteString(",location_id=")
		b.WriteString(s.LocationID)
	}
	b.WriteString(" value=")
	b.WriteString(s.Value.String())
	b.WriteString(" ")
	b.WriteString(strconv.FormatInt(s.Timestamp.UnixNano(), 10))
	return b.String()
}

func decodePairs(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, pair := range raw {
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad pair %q", pair)
		}
		out[k] = v
	}
	return out, nil
}
