// Package scraper runs country scrapes against the citybik.es API.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aluiziolira/citybike-scraper/client"
	"github.com/aluiziolira/citybike-scraper/config"
	"github.com/aluiziolira/citybike-scraper/models"
	"github.com/aluiziolira/citybike-scraper/parser"
	"github.com/aluiziolira/citybike-scraper/pipeline"
)

// ErrNoCountry is returned when Run is called without a country code.
var ErrNoCountry = errors.New("country code is required")

// Scraper walks the network listing for one country at a time.
type Scraper struct {
	cfg    *config.Config
	client *client.Client
}

// NewScraper builds a scraper on top of c.
func NewScraper(c *client.Client) *Scraper {
	return &Scraper{
		cfg:    c.Config(),
		client: c,
	}
}

// Run fetches the listing once and, in listing order, summarises every
// network located in country. The country code is matched upper-cased. obs sees a Running event per matched network
// and a final Completed or Failed event. A fetch error aborts the run and
// discards the rows gathered so far; malformed records are skipped.
func (s *Scraper) Run(ctx context.Context, country string, obs Observer) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return nil, ErrNoCountry
	}

	start := time.Now()
	requestsBefore := s.client.RequestCount()
	retriesBefore := s.client.RetryCount()
	hitsBefore := s.client.CacheHits()

	fail := func(err error) (*models.ScrapeResult, error) {
		slog.Error("scrape failed", slog.String("country", country), slog.Any("error", err))
		obs.Publish(Event{State: StateFailed, Country: country, Err: err, Error: err.Error()})
		return nil, err
	}

	networks, err := s.client.ListNetworks(ctx)
	if err != nil {
		return fail(fmt.Errorf("list networks: %w", err))
	}

	matched := 0
	for _, n := range networks {
		if n.Country() == country {
			matched++
		}
	}

	total := len(networks)
	if s.cfg.ProgressMode == config.ProgressMatched {
		total = matched
	}

	slog.Info("starting scrape",
		slog.String("country", country),
		slog.Int("networks", len(networks)),
		slog.Int("matched", matched),
	)
	obs.Publish(Event{State: StateRunning, Country: country, Rows: []models.NetworkSummary{}, Total: total})

	p := pipeline.NewPipeline()
	var skipped []string
	seen := 0
	for i, n := range networks {
		if n.Country() != country {
			continue
		}
		if err := ctx.Err(); err != nil {
			p.Discard()
			return fail(err)
		}
		seen++

		row, err := s.summarize(ctx, n)
		switch {
		case errors.Is(err, parser.ErrMalformedRecord):
			slog.Warn("skipping malformed network",
				slog.String("id", n.ID),
				slog.Any("error", err),
			)
			s.client.Metrics.IncSkipped()
			skipped = append(skipped, n.ID)
		case err != nil:
			p.Discard()
			return fail(err)
		default:
			err := p.Process(row)
			switch {
			case errors.Is(err, pipeline.ErrInvalidRow):
				slog.Warn("skipping invalid row",
					slog.String("id", n.ID),
					slog.Any("error", err),
				)
				s.client.Metrics.IncSkipped()
				skipped = append(skipped, n.ID)
			case err != nil:
				p.Discard()
				return fail(err)
			default:
				s.client.Metrics.IncRows()
			}
		}

		scanned := i + 1
		if s.cfg.ProgressMode == config.ProgressMatched {
			scanned = seen
		}
		obs.Publish(Event{State: StateRunning, Country: country, Rows: p.Rows(), Scanned: scanned, Total: total})
	}

	rows := p.Rows()
	validationErrors, _ := p.GetMetrics()["validation_errors"].(map[string]int)
	result := &models.ScrapeResult{
		Country:          country,
		Rows:             rows,
		StartTime:        start,
		EndTime:          time.Now(),
		ListingSize:      len(networks),
		MatchedCount:     matched,
		SkippedIDs:       skipped,
		ValidationErrors: validationErrors,
		RequestCount:     s.client.RequestCount() - requestsBefore,
		RetryCount:       s.client.RetryCount() - retriesBefore,
		CacheHits:        s.client.CacheHits() - hitsBefore,
	}

	slog.Info("scrape complete",
		slog.String("country", country),
		slog.Int("rows", len(rows)),
		slog.Int("skipped", len(skipped)),
		slog.Duration("duration", result.EndTime.Sub(start)),
	)
	obs.Publish(Event{State: StateCompleted, Country: country, Rows: rows, Scanned: total, Total: total})
	return result, nil
}

func (s *Scraper) summarize(ctx context.Context, n models.Network) (models.NetworkSummary, error) {
	meta, err := parser.ExtractMetadata(n, s.cfg.APIHost)
	if err != nil {
		return models.NetworkSummary{}, err
	}

	body, err := s.client.Fetch(ctx, meta.APIEndpoint)
	if err != nil {
		return models.NetworkSummary{}, fmt.Errorf("fetch network %s: %w", meta.ID, err)
	}

	detail, err := parser.ParseDetail(meta.ID, body)
	if err != nil {
		return models.NetworkSummary{}, err
	}
	counts, err := parser.Aggregate(detail)
	if err != nil {
		return models.NetworkSummary{}, err
	}
	return parser.Summary(meta, counts), nil
}
