// Package pipeline owns the result table of one scrape run: validation and
// output writing.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/citybike-scraper/models"
	"github.com/aluiziolira/citybike-scraper/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after Commit or Discard.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrInvalidRow wraps every row rejected by Process.
	ErrInvalidRow = errors.New("pipeline: invalid row")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(rows []models.NetworkSummary) error
	Close() error
	Validate() error
}

// Pipeline accumulates rows in insertion order. It is owned by a single
// run and is not reused.
type Pipeline struct {
	mu     sync.Mutex
	rows   []models.NetworkSummary
	closed bool

	metrics metrics
}

// NewPipeline builds an empty result table.
func NewPipeline() *Pipeline {
	return &Pipeline{
		rows:    make([]models.NetworkSummary, 0, 32),
		metrics: newMetrics(),
	}
}

// Process validates and appends rows in order. Rows sharing a network id
// are all kept. Invalid rows are counted and reported in the returned
// error, which matches ErrInvalidRow; the valid ones are still appended.
func (p *Pipeline) Process(rows ...models.NetworkSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}

	var errs []error
	for i := range rows {
		row := rows[i]
		if err := parser.ValidateSummary(&row); err != nil {
			p.metrics.addValidation("invalid_record")
			errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidRow, err))
			continue
		}
		p.rows = append(p.rows, row)
		p.metrics.incrementProcessed()
	}
	return errors.Join(errs...)
}

// Rows returns a copy of the current table.
func (p *Pipeline) Rows() []models.NetworkSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.NetworkSummary, len(p.rows))
	copy(out, p.rows)
	return out
}

// Len returns the number of accepted rows.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rows)
}

// Commit writes the whole table to writer, validates the output and closes
// the pipeline. The writer is closed as well.
func (p *Pipeline) Commit(writer OutputWriter) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPipelineClosed
	}
	p.closed = true
	rows := make([]models.NetworkSummary, len(p.rows))
	copy(rows, p.rows)
	p.mu.Unlock()

	if err := writer.Write(rows); err != nil {
		writer.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("validate output: %w", err)
	}
	return nil
}

// Discard closes the pipeline without writing anything.
func (p *Pipeline) Discard() {
	p.mu.Lock()
	p.closed = true
	p.rows = nil
	p.mu.Unlock()
}

// GetMetrics returns a snapshot of the internal counters: "processed_rows"
// (int64) and "validation_errors" (map[string]int).
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_rows":    m.processed,
		"validation_errors": copyValidation,
	}
}
