package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/screener-client/pkg/criteria"
	"github.com/Sternrassler/screener-client/pkg/logging"
	"github.com/Sternrassler/screener-client/pkg/metrics"
	"github.com/Sternrassler/screener-client/pkg/pagination"
	"github.com/Sternrassler/screener-client/pkg/ratelimit"
	"github.com/Sternrassler/screener-client/pkg/screener"
	"github.com/Sternrassler/screener-client/pkg/sentinel"
	"github.com/Sternrassler/screener-client/pkg/table"
	"github.com/Sternrassler/screener-client/pkg/table/export"
)

// screenService is the part of *screener.Screener the HTTP API needs.
type screenService interface {
	ScreenWithStats(ctx context.Context, req *criteria.Request, opts ...screener.Option) (table.Result, pagination.Stats, error)
}

// budgetSource reads the shared request budget. *ratelimit.Tracker
// satisfies it; nil means no budget is configured.
type budgetSource interface {
	GetState(ctx context.Context) (*ratelimit.BudgetState, error)
}

// budgetMaxAge bounds how long GET /v1/budget serves a cached snapshot
// before reading Redis again.
const budgetMaxAge = time.Second

// screenRequest is the body of POST /v1/screen.
type screenRequest struct {
	filterSet
	Target  int   `json:"target,omitempty"`
	AsTable *bool `json:"as_table,omitempty"`
}

type screenResponse struct {
	RetrievalID string           `json:"retrieval_id"`
	Pages       int              `json:"pages"`
	TotalCount  int              `json:"total_count"`
	Table       *export.Document `json:"table,omitempty"`
	Records     []map[string]any `json:"records,omitempty"`
}

type budgetResponse struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Exhausted bool      `json:"exhausted"`
	NearLimit bool      `json:"near_limit"`
	ResetAt   time.Time `json:"reset_at"`
	ResetInMS int64     `json:"reset_in_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newRouter(s screenService, budget budgetSource, maxTarget, defaultTarget int) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logging.NewLogger("http")))
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/screen", screenHandler(s, maxTarget, defaultTarget))
		r.Get("/budget", budgetHandler(budget, budgetMaxAge))
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func screenHandler(s screenService, maxTarget, defaultTarget int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body screenRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
			return
		}

		target := body.Target
		if target <= 0 {
			target = defaultTarget
		}
		if target > maxTarget {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("target %d exceeds the maximum of %d", target, maxTarget)})
			return
		}
		asTable := body.AsTable == nil || *body.AsTable

		req, err := body.filterSet.build()
		if err != nil {
			writeError(w, err)
			return
		}

		res, stats, err := s.ScreenWithStats(r.Context(), req,
			screener.WithTarget(target),
			screener.AsTable(asTable),
		)
		if err != nil {
			writeError(w, err)
			return
		}

		resp := screenResponse{
			RetrievalID: stats.RetrievalID,
			Pages:       stats.Pages,
			TotalCount:  stats.TotalCount,
		}
		if res.Table != nil {
			doc := export.NewDocument(res.Table)
			resp.Table = &doc
		} else {
			resp.Records = make([]map[string]any, len(res.Records))
			for i, rec := range res.Records {
				resp.Records[i] = rec.AsMap()
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// budgetHandler reports the shared request budget. Snapshots younger than
// maxAge are reused so polling does not add Redis round trips.
func budgetHandler(budget budgetSource, maxAge time.Duration) http.HandlerFunc {
	var (
		mu     sync.Mutex
		cached *ratelimit.BudgetState
	)

	return func(w http.ResponseWriter, r *http.Request) {
		if budget == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "request budget is not enabled"})
			return
		}

		mu.Lock()
		state := cached
		if state == nil || state.IsStale(maxAge) {
			fresh, err := budget.GetState(r.Context())
			if err != nil {
				mu.Unlock()
				writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: fmt.Sprintf("read request budget: %v", err)})
				return
			}
			cached, state = fresh, fresh
		}
		mu.Unlock()

		writeJSON(w, http.StatusOK, budgetResponse{
			Used:      state.Used,
			Limit:     state.Limit,
			Remaining: state.Remaining(),
			Exhausted: state.Exhausted(),
			NearLimit: state.NearLimit(),
			ResetAt:   state.ResetAt,
			ResetInMS: state.TimeUntilReset().Milliseconds(),
		})
	}
}

// statusFor maps a retrieval error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sentinel.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, pagination.ErrPolicyExceeded), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, sentinel.ErrConnectivity), errors.Is(err, sentinel.ErrDecoding):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status_code", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
