// Package presenter renders scrape runs on a terminal.
package presenter

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/aluiziolira/citybike-scraper/models"
	"github.com/aluiziolira/citybike-scraper/pipeline"
	"github.com/aluiziolira/citybike-scraper/scraper"
	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	StatusRunning  = "Web scraper is running..."
	StatusComplete = "Web scraping complete"

	barWidth = 30
)

// Terminal is a scraper.Observer that prints progress to out and, once a
// run completes, writes the result table to Filename in Format.
type Terminal struct {
	out      io.Writer
	Format   string
	Filename string
	// LiveTable redraws the table on every running event, not only at the end.
	LiveTable bool

	mu      sync.Mutex
	written string
	err     error
}

// NewTerminal builds a presenter writing to out.
func NewTerminal(out io.Writer, format, filename string) *Terminal {
	return &Terminal{
		out:      out,
		Format:   format,
		Filename: filename,
	}
}

// Publish renders e.
func (t *Terminal) Publish(e scraper.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintln(t.out, StatusLine(e))
	if e.State == scraper.StateFailed {
		return
	}
	fmt.Fprintln(t.out, ProgressBar(e, barWidth))

	switch e.State {
	case scraper.StateRunning:
		if t.LiveTable && len(e.Rows) > 0 {
			RenderTable(t.out, e.Rows)
		}
	case scraper.StateCompleted:
		RenderTable(t.out, e.Rows)
		if t.Filename == "" {
			return
		}
		if err := Export(e.Rows, t.Format, t.Filename); err != nil {
			slog.Error("export failed", slog.String("file", t.Filename), slog.Any("error", err))
			t.err = err
			return
		}
		t.written = t.Filename
		fmt.Fprintf(t.out, "Saved %d rows to %s\n", len(e.Rows), t.Filename)
	}
}

// Written returns the file written by the last completed run, if any.
func (t *Terminal) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}

// Err returns the last export error.
func (t *Terminal) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// StatusLine describes the state of the run in e.
func StatusLine(e scraper.Event) string {
	switch e.State {
	case scraper.StateRunning:
		return StatusRunning
	case scraper.StateCompleted:
		return StatusComplete
	case scraper.StateFailed:
		if e.Error != "" {
			return "Web scraping failed: " + e.Error
		}
		return "Web scraping failed"
	default:
		return ""
	}
}

// ProgressBar draws e.Fraction() as a fixed-width bar followed by
// Scanned/Total.
func ProgressBar(e scraper.Event, width int) string {
	if width <= 0 {
		width = barWidth
	}
	filled := int(e.Fraction() * float64(width))
	scanned := e.Scanned
	if e.State == scraper.StateCompleted {
		scanned = e.Total
	}
	return fmt.Sprintf("[%s%s] %d/%d",
		strings.Repeat("#", filled),
		strings.Repeat("-", width-filled),
		scanned, e.Total,
	)
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

// RenderTable prints rows as a table with the CSV column names.
func RenderTable(out io.Writer, rows []models.NetworkSummary) {
	t := newTable(out)
	header := make(table.Row, len(pipeline.CSVHeader))
	for i, name := range pipeline.CSVHeader {
		header[i] = name
	}
	t.AppendHeader(header)
	for _, row := range rows {
		t.AppendRow(table.Row{
			row.Country,
			row.City,
			row.Company.String(),
			row.Name,
			row.ID,
			row.APIEndpoint,
			row.Stations,
			row.EmptySlots,
			row.Bikes,
			row.TotalSlots,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "rows", len(rows)})
	t.Render()
}

// Export writes rows through a fresh pipeline to filename.
func Export(rows []models.NetworkSummary, format, filename string) error {
	writer, err := pipeline.NewOutputWriter(format, filename)
	if err != nil {
		return err
	}
	p := pipeline.NewPipeline()
	if err := p.Process(rows...); err != nil {
		writer.Close()
		return err
	}
	return p.Commit(writer)
}
