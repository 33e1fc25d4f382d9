// Package server exposes a scrape session over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aluiziolira/citybike-scraper/models"
	"github.com/aluiziolira/citybike-scraper/scraper"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DownloadName is the file name offered for the CSV export.
const DownloadName = "city_bike.csv"

const mimeNDJSON = "application/x-ndjson"

// Server serves one session: the country index, run streaming, the latest
// result and its CSV download.
type Server struct {
	echo    *echo.Echo
	session *scraper.Session
}

// New registers routes for session.
func New(session *scraper.Session) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			switch {
			case v.Status >= 500:
				level = slog.LevelError
			case v.Status >= 400:
				level = slog.LevelWarn
			}
			slog.Log(c.Request().Context(), level, "http request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &Server{echo: e, session: session}

	api := e.Group("/api")
	api.GET("/countries", s.countriesHandler)
	api.POST("/runs", s.runHandler)
	api.GET("/runs/latest", s.latestHandler)
	e.GET("/"+DownloadName, s.downloadHandler)

	if metrics := session.Client().Metrics; metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	slog.Info("http server listening", slog.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) countriesHandler(c echo.Context) error {
	codes, err := s.session.Countries(c.Request().Context())
	if err != nil {
		slog.Error("country index failed", slog.Any("error", err))
		return &echo.HTTPError{
			Code:    http.StatusBadGateway,
			Message: "Failed to load the network listing",
		}
	}
	return c.JSON(http.StatusOK, codes)
}

// runHandler starts a run and streams every event as one JSON line.
func (s *Server) runHandler(c echo.Context) error {
	country := strings.TrimSpace(c.QueryParam("country"))
	if country == "" {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "country is required",
		}
	}

	resp := c.Response()
	enc := json.NewEncoder(resp)
	streaming := false
	obs := scraper.ObserverFunc(func(e scraper.Event) {
		if !streaming {
			resp.Header().Set(echo.HeaderContentType, mimeNDJSON)
			resp.Header().Set("Cache-Control", "no-cache")
			resp.WriteHeader(http.StatusOK)
			streaming = true
		}
		if err := enc.Encode(e); err != nil {
			slog.Warn("stream write failed", slog.Any("error", err))
			return
		}
		resp.Flush()
	})

	_, err := s.session.Run(c.Request().Context(), country, obs)
	switch {
	case err == nil || streaming:
		return nil
	case errors.Is(err, scraper.ErrRunInProgress):
		return &echo.HTTPError{Code: http.StatusConflict, Message: err.Error()}
	case errors.Is(err, scraper.ErrNoCountry):
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	default:
		return &echo.HTTPError{Code: http.StatusBadGateway, Message: err.Error()}
	}
}

// RunResponse is the JSON form of a completed run.
type RunResponse struct {
	Country      string                  `json:"country"`
	Rows         []models.NetworkSummary `json:"rows"`
	StartedAt    time.Time               `json:"started_at"`
	FinishedAt   time.Time               `json:"finished_at"`
	ListingSize  int                     `json:"listing_size"`
	MatchedCount int                     `json:"matched_count"`
	SkippedIDs   []string                `json:"skipped_ids,omitempty"`
	Validation   map[string]int          `json:"validation_errors,omitempty"`
	Requests     int                     `json:"requests"`
	Retries      int                     `json:"retries"`
	CacheHits    int                     `json:"cache_hits"`
}

func newRunResponse(r *models.ScrapeResult) RunResponse {
	rows := r.Rows
	if rows == nil {
		rows = []models.NetworkSummary{}
	}
	return RunResponse{
		Country:      r.Country,
		Rows:         rows,
		StartedAt:    r.StartTime,
		FinishedAt:   r.EndTime,
		ListingSize:  r.ListingSize,
		MatchedCount: r.MatchedCount,
		SkippedIDs:   r.SkippedIDs,
		Validation:   r.ValidationErrors,
		Requests:     r.RequestCount,
		Retries:      r.RetryCount,
		CacheHits:    r.CacheHits,
	}
}

func (s *Server) latestHandler(c echo.Context) error {
	result, err := s.session.Latest()
	if err != nil {
		return &echo.HTTPError{Code: http.StatusNotFound, Message: err.Error()}
	}
	return c.JSON(http.StatusOK, newRunResponse(result))
}

func (s *Server) downloadHandler(c echo.Context) error {
	data, err := s.session.CSV()
	switch {
	case errors.Is(err, scraper.ErrNoResult):
		return &echo.HTTPError{Code: http.StatusNotFound, Message: err.Error()}
	case err != nil:
		slog.Error("csv export failed", slog.Any("error", err))
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to export results"}
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+DownloadName+`"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", data)
}
