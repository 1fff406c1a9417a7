package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRun(t *testing.T) {
	probes := []Probe{
		{
			Name:     "database",
			Check:    func(ctx context.Context) error { return nil },
			Critical: true,
		},
		{
			Name:  "geojson",
			Check: func(ctx context.Context) error { return errors.New("missing") },
		},
		{
			Name:    "slow",
			Timeout: 10 * time.Millisecond,
			Check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
	}

	results := Run(context.Background(), probes)

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results[0].Error != nil {
		t.Errorf("Expected database probe to pass, got %v", results[0].Error)
	}
	if results[1].Error == nil {
		t.Error("Expected geojson probe to fail")
	}
	if !errors.Is(results[2].Error, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", results[2].Error)
	}
}

func TestAnalyzeResults(t *testing.T) {
	tests := []struct {
		name        string
		results     []Result
		wantErr     bool
		wantHealthy bool
	}{
		{
			name:        "AllPass",
			results:     []Result{{Probe: Probe{Name: "P1", Critical: true}}},
			wantHealthy: true,
		},
		{
			name:    "CriticalFailure",
			results: []Result{{Probe: Probe{Name: "P1", Critical: true}, Error: errors.New("fail")}},
			wantErr: true,
		},
		{
			name:        "NonCriticalFailure",
			results:     []Result{{Probe: Probe{Name: "P1"}, Error: errors.New("fail")}},
			wantHealthy: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AnalyzeResults(tt.results)
			if (err != nil) != tt.wantErr {
				t.Errorf("AnalyzeResults() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := Healthy(tt.results); got != tt.wantHealthy {
				t.Errorf("Healthy() = %v, want %v", got, tt.wantHealthy)
			}
		})
	}
}

func TestStatuses(t *testing.T) {
	got := Statuses([]Result{
		{Probe: Probe{Name: "db", Critical: true}, Duration: 1500 * time.Microsecond},
		{Probe: Probe{Name: "cache"}, Error: errors.New("down")},
	})

	if len(got) != 2 {
		t.Fatalf("Expected 2 statuses, got %d", len(got))
	}
	if !got[0].OK || !got[0].Critical || got[0].LatencyMS != 1 {
		t.Errorf("Unexpected first status: %+v", got[0])
	}
	if got[1].OK || got[1].Error != "down" {
		t.Errorf("Unexpected second status: %+v", got[1])
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "shops.geojson")
	if err := os.WriteFile(file, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := FileExists(file)(ctx); err != nil {
		t.Errorf("Expected file to exist: %v", err)
	}
	if err := FileExists(dir)(ctx); err == nil {
		t.Error("Expected directory to be rejected")
	}
	if err := FileExists(filepath.Join(dir, "nope"))(ctx); err == nil {
		t.Error("Expected missing file to fail")
	}
}
