package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// DefaultTimeout bounds a probe that sets no Timeout of its own.
const DefaultTimeout = 5 * time.Second

// CheckFunc performs one check and returns nil when it passes.
type CheckFunc func(ctx context.Context) error

// Probe is a named dependency check, run at startup and from the health endpoint.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // A failure prevents startup and marks the service unhealthy
	Timeout  time.Duration
}

// Result is the outcome of one probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Status is the JSON form of a Result.
type Status struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Critical  bool   `json:"critical"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Run executes probes in order, each under its own timeout.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))

	for i, p := range probes {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		err := p.Check(pctx)
		cancel()

		results[i] = Result{Probe: p, Error: err, Duration: time.Since(start)}
	}
	return results
}

// Healthy reports whether every critical probe passed.
func Healthy(results []Result) bool {
	for _, r := range results {
		if r.Error != nil && r.Probe.Critical {
			return false
		}
	}
	return true
}

// Statuses converts results for the health endpoint.
func Statuses(results []Result) []Status {
	out := make([]Status, len(results))
	for i, r := range results {
		out[i] = Status{
			Name:      r.Probe.Name,
			OK:        r.Error == nil,
			Critical:  r.Probe.Critical,
			LatencyMS: r.Duration.Milliseconds(),
		}
		if r.Error != nil {
			out[i].Error = r.Error.Error()
		}
	}
	return out
}

// AnalyzeResults logs a summary line per probe and joins the critical failures.
func AnalyzeResults(results []Result) error {
	var criticalErrors []error

	slog.Info("Startup checks")
	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}
		msg := fmt.Sprintf("[%s] %-16s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		if r.Error == nil {
			slog.Info(msg)
			continue
		}
		if r.Probe.Critical {
			slog.Error(msg, "error", r.Error)
			criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		} else {
			slog.Warn(msg, "error", r.Error)
		}
	}

	return errors.Join(criticalErrors...)
}

// FileExists checks that path names a readable regular file.
func FileExists(path string) CheckFunc {
	return func(_ context.Context) error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		return nil
	}
}
