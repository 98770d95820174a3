package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/screener-client/pkg/criteria"
	"github.com/Sternrassler/screener-client/pkg/logging"
	"github.com/Sternrassler/screener-client/pkg/record"
	"github.com/Sternrassler/screener-client/pkg/sentinel"
)

// DefaultTarget is the number of records requested when the caller does not
// say otherwise.
const DefaultTarget = 500

// ErrPolicyExceeded is returned when a retrieval hits MaxPages or MaxDuration.
var ErrPolicyExceeded = errors.New("retrieval policy exceeded")

// Stop reasons reported in Stats.
const (
	StopTargetReached = "target_reached"
	StopEmptyPage     = "empty_page"
)

// Prometheus metrics for retrievals.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screener_pages_fetched_total",
		Help: "Total number of screener pages fetched and decoded",
	})

	recordsRetrievedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screener_records_retrieved_total",
		Help: "Total number of records accumulated by successful retrievals",
	})

	retrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "screener_retrieval_duration_seconds",
		Help:    "Duration of whole retrievals in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	retrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_retrievals_total",
		Help: "Total number of retrievals by outcome",
	}, []string{"outcome"})
)

// Config holds controller configuration.
type Config struct {
	// PageTimeout bounds a single page request, retries included.
	PageTimeout time.Duration

	// MaxPages caps the number of pages per retrieval. 0 means no cap.
	MaxPages int

	// MaxDuration caps the wall-clock time of a retrieval. 0 means no cap.
	MaxDuration time.Duration
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		PageTimeout: 60 * time.Second,
	}
}

// Dispatcher performs one page request and returns the response body.
type Dispatcher interface {
	Dispatch(ctx context.Context, form url.Values) ([]byte, error)
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(ctx context.Context, form url.Values) ([]byte, error)

// Dispatch implements Dispatcher.
func (f DispatchFunc) Dispatch(ctx context.Context, form url.Values) ([]byte, error) {
	return f(ctx, form)
}

// Adapter normalizes one raw hit.
type Adapter interface {
	Adapt(raw json.RawMessage) (record.Record, error)
}

// Stats describes a finished retrieval.
type Stats struct {
	RetrievalID     string
	Pages           int
	TotalCount      int
	EffectiveTarget int
	Records         int
	StoppedBy       string
	Duration        time.Duration
}

// Controller runs retrievals. It holds no per-call state and is safe for
// concurrent use; each Retrieve call owns its own accumulator.
type Controller struct {
	dispatcher Dispatcher
	adapter    Adapter
	config     Config
	logger     zerolog.Logger
}

// NewController creates a new controller.
func NewController(dispatcher Dispatcher, adapter Adapter, config Config) *Controller {
	if config.PageTimeout <= 0 {
		config.PageTimeout = 60 * time.Second
	}
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}
	if config.MaxDuration < 0 {
		config.MaxDuration = 0
	}

	return &Controller{
		dispatcher: dispatcher,
		adapter:    adapter,
		config:     config,
		logger:     logging.NewLogger("pagination"),
	}
}

// Retrieve fetches up to target records matching req. A non-positive target
// means DefaultTarget.
func (c *Controller) Retrieve(ctx context.Context, req *criteria.Request, target int) ([]record.Record, error) {
	records, _, err := c.RetrieveWithStats(ctx, req, target)
	return records, err
}

// RetrieveWithStats is Retrieve that also reports how the retrieval went.
func (c *Controller) RetrieveWithStats(ctx context.Context, req *criteria.Request, target int) ([]record.Record, Stats, error) {
	if req == nil {
		return nil, Stats{}, fmt.Errorf("%w: screening request is required", sentinel.ErrInvalidArgument)
	}
	if !req.Finalized() {
		return nil, Stats{}, fmt.Errorf("%w: screening request was not built by criteria.Builder", sentinel.ErrInvalidArgument)
	}
	if target <= 0 {
		target = DefaultTarget
	}

	start := time.Now()
	stats := Stats{RetrievalID: uuid.NewString()}
	logger := c.logger.With().
		Str("retrieval_id", stats.RetrievalID).
		Int("target", target).
		Logger()

	records, err := c.run(ctx, req, target, &stats, logger)

	stats.Duration = time.Since(start)
	retrievalDuration.Observe(stats.Duration.Seconds())

	if err != nil {
		retrievalsTotal.WithLabelValues(outcome(err)).Inc()
		logger.Warn().
			Err(err).
			Int("pages", stats.Pages).
			Dur("duration", stats.Duration).
			Msg("Retrieval failed")
		return nil, stats, err
	}

	stats.Records = len(records)
	retrievalsTotal.WithLabelValues("success").Inc()
	recordsRetrievedTotal.Add(float64(len(records)))

	logger.Info().
		Int("pages", stats.Pages).
		Int("records", stats.Records).
		Int("total_count", stats.TotalCount).
		Str("stopped_by", stats.StoppedBy).
		Dur("duration", stats.Duration).
		Msg("Retrieval complete")

	return records, stats, nil
}

// run is the page loop. effectiveTarget is owned by this call only.
func (c *Controller) run(ctx context.Context, req *criteria.Request, target int, stats *Stats, logger zerolog.Logger) ([]record.Record, error) {
	var deadline time.Time
	if c.config.MaxDuration > 0 {
		deadline = time.Now().Add(c.config.MaxDuration)
	}

	records := make([]record.Record, 0)
	effectiveTarget := target

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("retrieval cancelled before page %d: %w", page, err)
		}
		if c.config.MaxPages > 0 && page > c.config.MaxPages {
			return nil, fmt.Errorf("%w: more than %d pages", ErrPolicyExceeded, c.config.MaxPages)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: exceeded %v", ErrPolicyExceeded, c.config.MaxDuration)
		}

		p, err := c.fetch(ctx, req, page)
		if err != nil {
			return nil, err
		}
		stats.Pages = page
		stats.TotalCount = p.TotalCount
		pagesFetchedTotal.Inc()

		if page == 1 || p.TotalCount < effectiveTarget {
			effectiveTarget = min(target, p.TotalCount)
		}
		stats.EffectiveTarget = effectiveTarget

		// A shrinking total can leave us above the bound. The bound wins
		// over monotonic growth: the accumulated tail is dropped.
		if len(records) > effectiveTarget {
			records = records[:effectiveTarget]
		}

		hits := p.Hits
		if room := effectiveTarget - len(records); len(hits) > room {
			hits = hits[:room]
		}
		for i, raw := range hits {
			rec, err := c.adapter.Adapt(raw)
			if err != nil {
				return nil, fmt.Errorf("page %d hit %d: %w", page, i, err)
			}
			records = append(records, rec)
		}

		logger.Debug().
			Int("page", page).
			Int("hits", len(p.Hits)).
			Int("total_count", p.TotalCount).
			Int("effective_target", effectiveTarget).
			Int("records", len(records)).
			Msg("Page accumulated")

		if len(p.Hits) == 0 {
			stats.StoppedBy = StopEmptyPage
			if len(records) < effectiveTarget {
				logger.Warn().
					Int("page", page).
					Int("records", len(records)).
					Int("effective_target", effectiveTarget).
					Msg("Service returned an empty page before the target was reached")
			}
			return records, nil
		}

		if len(records) >= effectiveTarget {
			stats.StoppedBy = StopTargetReached
			return records, nil
		}
	}
}

// fetch dispatches and decodes one page within the page timeout.
func (c *Controller) fetch(ctx context.Context, req *criteria.Request, page int) (*Page, error) {
	pageCtx, cancel := context.WithTimeout(ctx, c.config.PageTimeout)
	defer cancel()

	body, err := c.dispatcher.Dispatch(pageCtx, req.Form(page))
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}

	p, err := DecodePage(body)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}
	return p, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, sentinel.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, sentinel.ErrConnectivity):
		return "connectivity"
	case errors.Is(err, sentinel.ErrDecoding):
		return "decoding"
	case errors.Is(err, ErrPolicyExceeded):
		return "policy"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
