package presenter

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/citybike-scraper/models"
	"github.com/aluiziolira/citybike-scraper/pipeline"
	"github.com/aluiziolira/citybike-scraper/scraper"
	"github.com/google/go-cmp/cmp"
)

func sampleRows() []models.NetworkSummary {
	return []models.NetworkSummary{
		models.NewNetworkSummary("FR", "Paris", models.Company{"X"}, "N1", "a", "http://api.example.test/v2/networks/a", 1, 3, 0),
		models.NewNetworkSummary("FR", "Nice", models.Company{"V", "W"}, "N4", "d", "http://api.example.test/v2/networks/d", 2, 2, 5),
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name  string
		event scraper.Event
		want  string
	}{
		{name: "running", event: scraper.Event{State: scraper.StateRunning}, want: StatusRunning},
		{name: "completed", event: scraper.Event{State: scraper.StateCompleted}, want: StatusComplete},
		{name: "failed", event: scraper.Event{State: scraper.StateFailed, Error: "boom"}, want: "Web scraping failed: boom"},
		{name: "idle", event: scraper.Event{State: scraper.StateIdle}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusLine(tt.event); got != tt.want {
				t.Fatalf("StatusLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name  string
		event scraper.Event
		want  string
	}{
		{name: "empty", event: scraper.Event{State: scraper.StateRunning, Total: 4}, want: "[----] 0/4"},
		{name: "half", event: scraper.Event{State: scraper.StateRunning, Scanned: 2, Total: 4}, want: "[##--] 2/4"},
		{name: "overshoot clamps", event: scraper.Event{State: scraper.StateRunning, Scanned: 9, Total: 4}, want: "[####] 9/4"},
		{name: "completed", event: scraper.Event{State: scraper.StateCompleted, Scanned: 1, Total: 4}, want: "[####] 4/4"},
		{name: "no total", event: scraper.Event{State: scraper.StateRunning}, want: "[----] 0/0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProgressBar(tt.event, 4); got != tt.want {
				t.Fatalf("ProgressBar() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, sampleRows())

	out := buf.String()
	for _, want := range []string{"N_STATIONS", "TOTAL_SLOTS", "Paris", "V; W", "ROWS"} {
		if !strings.Contains(strings.ToUpper(out), strings.ToUpper(want)) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestTerminalWritesArtifactOnCompletion(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "city_bike.csv")

	var buf bytes.Buffer
	term := NewTerminal(&buf, "csv", filename)

	term.Publish(scraper.Event{State: scraper.StateRunning, Rows: []models.NetworkSummary{}, Total: 5})
	if _, err := os.Stat(filename); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("artifact should not exist while running, stat err = %v", err)
	}

	rows := sampleRows()
	term.Publish(scraper.Event{State: scraper.StateCompleted, Rows: rows, Scanned: 5, Total: 5})
	if err := term.Err(); err != nil {
		t.Fatalf("export: %v", err)
	}
	if term.Written() != filename {
		t.Fatalf("written = %q, want %q", term.Written(), filename)
	}

	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer f.Close()
	got, err := pipeline.DecodeCSV(f)
	if err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if diff := cmp.Diff(rows, got); diff != "" {
		t.Fatalf("artifact mismatch (-want +got):\n%s", diff)
	}

	out := buf.String()
	if !strings.Contains(out, StatusRunning) || !strings.Contains(out, StatusComplete) {
		t.Fatalf("missing status lines:\n%s", out)
	}
	if !strings.Contains(out, "5/5") {
		t.Fatalf("missing final progress:\n%s", out)
	}
}

func TestTerminalFailedRunWritesNothing(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "city_bike.csv")

	var buf bytes.Buffer
	term := NewTerminal(&buf, "csv", filename)
	term.Publish(scraper.Event{State: scraper.StateFailed, Error: "upstream 503"})

	if _, err := os.Stat(filename); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("failed run must not write an artifact, stat err = %v", err)
	}
	if !strings.Contains(buf.String(), "upstream 503") {
		t.Fatalf("error not shown:\n%s", buf.String())
	}
	if term.Written() != "" {
		t.Fatalf("written = %q, want empty", term.Written())
	}
}

func TestTerminalReportsExportError(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, "xml", filepath.Join(t.TempDir(), "out.xml"))
	term.Publish(scraper.Event{State: scraper.StateCompleted, Rows: sampleRows(), Scanned: 1, Total: 1})

	if term.Err() == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestExportEmptyTable(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "city_bike.csv")
	if err := Export(nil, "csv", filename); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != strings.Join(pipeline.CSVHeader, ",") {
		t.Fatalf("empty export = %q, want header only", got)
	}
}
