package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/aluiziolira/citybike-scraper/models"
)

// CSVHeader is the column order of the CSV export.
var CSVHeader = []string{
	"country", "city", "company", "name", "id", "api_endpoint",
	"n_stations", "n_empty_slots", "n_bikes", "total_slots",
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(CSVHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends rows to the CSV output.
func (cw *CSVWriter) Write(rows []models.NetworkSummary) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := writeCSVRecords(cw.writer, rows); err != nil {
		return err
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file was written.
func (cw *CSVWriter) Validate() error {
	info, err := os.Stat(cw.file.Name())
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// EncodeCSV renders rows, header included, as UTF-8 CSV bytes.
func EncodeCSV(rows []models.NetworkSummary) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(CSVHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := writeCSVRecords(writer, rows); err != nil {
		return nil, err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCSV reads a table produced by EncodeCSV or CSVWriter.
func DecodeCSV(r io.Reader) ([]models.NetworkSummary, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv has no header")
	}
	if len(records[0]) != len(CSVHeader) {
		return nil, fmt.Errorf("csv header has %d columns, want %d", len(records[0]), len(CSVHeader))
	}

	rows := make([]models.NetworkSummary, 0, len(records)-1)
	for i, record := range records[1:] {
		ints := make([]int, 4)
		for j := range ints {
			n, err := strconv.Atoi(record[6+j])
			if err != nil {
				return nil, fmt.Errorf("csv line %d column %s: %w", i+2, CSVHeader[6+j], err)
			}
			ints[j] = n
		}
		rows = append(rows, models.NetworkSummary{
			Country:     record[0],
			City:        record[1],
			Company:     models.ParseCompany(record[2]),
			Name:        record[3],
			ID:          record[4],
			APIEndpoint: record[5],
			Stations:    ints[0],
			EmptySlots:  ints[1],
			Bikes:       ints[2],
			TotalSlots:  ints[3],
		})
	}
	return rows, nil
}

func writeCSVRecords(writer *csv.Writer, rows []models.NetworkSummary) error {
	for _, row := range rows {
		record := []string{
			row.Country,
			row.City,
			row.Company.CSVCell(),
			row.Name,
			row.ID,
			row.APIEndpoint,
			strconv.Itoa(row.Stations),
			strconv.Itoa(row.EmptySlots),
			strconv.Itoa(row.Bikes),
			strconv.Itoa(row.TotalSlots),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends rows in JSONL format.
func (jw *JSONWriter) Write(rows []models.NetworkSummary) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, row := range rows {
		if err := jw.encoder.Encode(row); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file exists. An empty table yields an empty
// file, which is valid JSONL.
func (jw *JSONWriter) Validate() error {
	if _, err := os.Stat(jw.file.Name()); err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
