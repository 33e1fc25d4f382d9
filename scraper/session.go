package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aluiziolira/citybike-scraper/client"
	"github.com/aluiziolira/citybike-scraper/models"
	"github.com/aluiziolira/citybike-scraper/parser"
	"github.com/aluiziolira/citybike-scraper/pipeline"
)

var (
	// ErrRunInProgress is returned when a run is requested while another
	// one is active in the same session.
	ErrRunInProgress = errors.New("a scrape is already running")
	// ErrNoResult is returned before the first completed run.
	ErrNoResult = errors.New("no completed scrape")
)

// Session is the state shared by one interactive user: the API client and
// its response cache, the country index and the last completed run. The
// country index and the CSV export are computed at most once per input and
// never invalidated.
type Session struct {
	client  *client.Client
	scraper *Scraper

	countriesMu sync.Mutex
	countries   []string

	running atomic.Bool

	mu     sync.Mutex
	seq    int
	last   *models.ScrapeResult
	csvSeq int
	csv    []byte
}

// NewSession builds a session around c.
func NewSession(c *client.Client) *Session {
	return &Session{
		client:  c,
		scraper: NewScraper(c),
	}
}

// Client returns the session's API client.
func (s *Session) Client() *client.Client {
	return s.client
}

// Countries returns the sorted, distinct country codes of the listing. The
// listing is fetched on the first call only.
func (s *Session) Countries(ctx context.Context) ([]string, error) {
	s.countriesMu.Lock()
	defer s.countriesMu.Unlock()

	if s.countries == nil {
		networks, err := s.client.ListNetworks(ctx)
		if err != nil {
			return nil, fmt.Errorf("list networks: %w", err)
		}
		s.countries = parser.CountryCodes(networks)
		slog.Debug("country index built", slog.Int("countries", len(s.countries)))
	}

	out := make([]string, len(s.countries))
	copy(out, s.countries)
	return out, nil
}

// Run scrapes country. Only one run may be active per session; a completed
// run replaces the previous result, a failed one leaves it untouched.
func (s *Session) Run(ctx context.Context, country string, obs Observer) (*models.ScrapeResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	result, err := s.scraper.Run(ctx, country, obs)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.seq++
	s.last = result
	s.mu.Unlock()
	return result, nil
}

// Running reports whether a run is active.
func (s *Session) Running() bool {
	return s.running.Load()
}

// Latest returns the last completed run.
func (s *Session) Latest() (*models.ScrapeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, ErrNoResult
	}
	return s.last, nil
}

// CSV returns the CSV export of the last completed run, encoding it once
// per run.
func (s *Session) CSV() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return nil, ErrNoResult
	}
	if s.csv != nil && s.csvSeq == s.seq {
		return s.csv, nil
	}

	data, err := pipeline.EncodeCSV(s.last.Rows)
	if err != nil {
		return nil, err
	}
	s.csv = data
	s.csvSeq = s.seq
	return data, nil
}
