package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aluiziolira/citybike-scraper/models"
	"github.com/google/go-cmp/cmp"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]models.NetworkSummary
	closed      bool
	validateErr error
}

func (mw *mockWriter) Write(rows []models.NetworkSummary) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	copyBatch := make([]models.NetworkSummary, len(rows))
	copy(copyBatch, rows)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func summary(id string, empty, bikes int) models.NetworkSummary {
	return models.NewNetworkSummary("FR", "Paris", models.Company{"X"}, "Net "+id, id, "http://api.example.test/v2/networks/"+id, 2, empty, bikes)
}

func TestPipelineProcessReportsInvalidRows(t *testing.T) {
	p := NewPipeline()

	valid := summary("a", 1, 2)
	invalid := models.NetworkSummary{ID: "b", EmptySlots: 1, Bikes: 1, TotalSlots: 5}

	err := p.Process(valid, invalid)
	if !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("process error = %v, want ErrInvalidRow", err)
	}

	if diff := cmp.Diff([]models.NetworkSummary{valid}, p.Rows()); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	metrics := p.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] != 1 {
		t.Fatalf("invalid_record = %d, want 1", validation["invalid_record"])
	}
	if processed, _ := metrics["processed_rows"].(int64); processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}
}

func TestPipelineKeepsRowsSharingAnID(t *testing.T) {
	p := NewPipeline()

	first := summary("a", 1, 2)
	second := summary("a", 9, 9)
	if err := p.Process(first, second); err != nil {
		t.Fatalf("process: %v", err)
	}
	if diff := cmp.Diff([]models.NetworkSummary{first, second}, p.Rows()); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestPipelinePreservesInsertionOrder(t *testing.T) {
	p := NewPipeline()
	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		if err := p.Process(summary(id, 1, 1)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	rows := p.Rows()
	for i, id := range ids {
		if rows[i].ID != id {
			t.Fatalf("row %d id = %q, want %q", i, rows[i].ID, id)
		}
	}
}

func TestPipelineRowsIsACopy(t *testing.T) {
	p := NewPipeline()
	if err := p.Process(summary("a", 1, 1)); err != nil {
		t.Fatalf("process: %v", err)
	}
	rows := p.Rows()
	rows[0].ID = "mutated"
	if p.Rows()[0].ID != "a" {
		t.Fatalf("Rows should return a copy")
	}
}

func TestPipelineCommitWritesOnce(t *testing.T) {
	p := NewPipeline()
	if err := p.Process(summary("a", 1, 1), summary("b", 2, 2)); err != nil {
		t.Fatalf("process: %v", err)
	}

	writer := &mockWriter{}
	if err := p.Commit(writer); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := writer.totalWritten(); got != 2 {
		t.Fatalf("written rows = %d, want 2", got)
	}
	if !writer.closed {
		t.Fatalf("writer should be closed after commit")
	}

	if err := p.Commit(writer); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("second commit error = %v, want ErrPipelineClosed", err)
	}
	if err := p.Process(summary("c", 1, 1)); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("process after commit error = %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineCommitReportsValidationFailure(t *testing.T) {
	p := NewPipeline()
	writer := &mockWriter{validateErr: errors.New("empty")}
	if err := p.Commit(writer); err == nil {
		t.Fatalf("expected validation failure")
	}
}

func TestPipelineDiscard(t *testing.T) {
	p := NewPipeline()
	if err := p.Process(summary("a", 1, 1)); err != nil {
		t.Fatalf("process: %v", err)
	}
	p.Discard()
	if p.Len() != 0 {
		t.Fatalf("discarded pipeline should be empty")
	}
	if err := p.Commit(&mockWriter{}); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("commit after discard error = %v, want ErrPipelineClosed", err)
	}
}

func TestNewOutputWriter(t *testing.T) {
	dir := t.TempDir()

	for _, format := range []string{"csv", "json", "dual"} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(dir, format, "city_bike.csv")
			writer, err := NewOutputWriter(format, path)
			if err != nil {
				t.Fatalf("new writer: %v", err)
			}
			p := NewPipeline()
			if err := p.Process(summary("a", 1, 1)); err != nil {
				t.Fatalf("process: %v", err)
			}
			if err := p.Commit(writer); err != nil {
				t.Fatalf("commit: %v", err)
			}
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("output missing: %v", err)
			}
		})
	}

	if _, err := NewOutputWriter("xml", filepath.Join(dir, "out.xml")); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
