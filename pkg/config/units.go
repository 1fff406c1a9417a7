package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can use extended units (d, w).
type Duration time.Duration

// Common durations.
const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

var (
	durationUnits = map[string]time.Duration{
		"ns": time.Nanosecond,
		"us": time.Microsecond,
		"µs": time.Microsecond,
		"ms": time.Millisecond,
		"s":  time.Second,
		"m":  time.Minute,
		"h":  time.Hour,
		"d":  Day,
		"w":  Week,
	}
	durationPart = regexp.MustCompile(`([0-9.]+)([a-zµ]+)`)
)

// ParseDuration parses a duration string. On top of time.ParseDuration it
// accepts d (day) and w (week), also in composites such as "2d12h".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if !strings.ContainsAny(s, "dw") {
		return time.ParseDuration(s)
	}

	parts := durationPart.FindAllStringSubmatch(s, -1)
	if len(parts) == 0 || strings.Join(flatten(parts), "") != s {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}

	var total time.Duration
	for _, p := range parts {
		val, err := strconv.ParseFloat(p[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in duration: %s", p[1])
		}
		unit, ok := durationUnits[p[2]]
		if !ok {
			return 0, fmt.Errorf("unknown unit: %s", p[2])
		}
		total += time.Duration(val * float64(unit))
	}
	return total, nil
}

func flatten(matches [][]string) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[0])
	}
	return out
}

// Distance is a length in meters. YAML accepts m, km, nm, ft or a bare number.
type Distance float64

// Meters returns the distance as float meters.
func (d Distance) Meters() float64 { return float64(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Distance) UnmarshalYAML(value *yaml.Node) error {
	var f float64
	if err := value.Decode(&f); err == nil {
		*d = Distance(f)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	m, err := ParseDistance(s)
	if err != nil {
		return err
	}
	*d = Distance(m)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Distance) MarshalYAML() (interface{}, error) {
	if d >= 1000 && float64(d) == float64(int64(d/1000))*1000 {
		return fmt.Sprintf("%dkm", int64(d/1000)), nil
	}
	return fmt.Sprintf("%gm", float64(d)), nil
}

var distanceUnits = []struct {
	suffix string
	meters float64
}{
	{"km", 1000},
	{"nm", 1852},
	{"ft", 0.3048},
	{"m", 1},
}

// ParseDistance parses "500m", "1.5km", "1nm", "10ft" or a unitless meter value.
func ParseDistance(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	mult := 1.0
	for _, u := range distanceUnits {
		if strings.HasSuffix(s, u.suffix) {
			mult = u.meters
			s = strings.TrimSuffix(s, u.suffix)
			break
		}
	}

	val, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid distance number: %w", err)
	}
	return val * mult, nil
}
