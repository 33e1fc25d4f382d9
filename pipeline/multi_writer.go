package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aluiziolira/citybike-scraper/models"
)

// MultiWriter sends the table to several writers in order.
type MultiWriter struct {
	mu      sync.Mutex
	writers []OutputWriter
}

// NewMultiWriter fans out to writers.
func NewMultiWriter(writers ...OutputWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write stops at the first writer that fails.
func (mw *MultiWriter) Write(rows []models.NetworkSummary) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for i, w := range mw.writers {
		if err := w.Write(rows); err != nil {
			return fmt.Errorf("writer %d (%T): %w", i, w, err)
		}
	}
	return nil
}

// Close closes every writer, even after a failure.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.each(OutputWriter.Close)
}

// Validate checks every output.
func (mw *MultiWriter) Validate() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.each(OutputWriter.Validate)
}

func (mw *MultiWriter) each(fn func(OutputWriter) error) error {
	var errs []error
	for i, w := range mw.writers {
		if err := fn(w); err != nil {
			errs = append(errs, fmt.Errorf("writer %d (%T): %w", i, w, err))
		}
	}
	return errors.Join(errs...)
}

// NewOutputWriter picks a writer for format. "dual" writes CSV to filename
// and JSONL next to it with a .jsonl extension.
func NewOutputWriter(format, filename string) (OutputWriter, error) {
	switch format {
	case "json":
		return NewJSONWriter(filename)
	case "csv":
		return NewCSVWriter(filename)
	case "dual":
		csvWriter, err := NewCSVWriter(filename)
		if err != nil {
			return nil, err
		}
		jsonWriter, err := NewJSONWriter(JSONLName(filename))
		if err != nil {
			csvWriter.Close()
			return nil, err
		}
		return NewMultiWriter(csvWriter, jsonWriter), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// JSONLName swaps the extension of filename for .jsonl.
func JSONLName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jsonl"
}
