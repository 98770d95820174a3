// Package screener is the entry point of the library: it retrieves up to a
// target number of instruments matching a screening request and returns
// them as records or as a uniform table.
//
// Basic usage:
//
//	s, err := screener.New(screener.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	req, err := criteria.NewBuilder(5).Exchanges(1, 2).Build()
//	if err != nil {
//		return err
//	}
//	res, err := s.Screen(ctx, req, screener.WithTarget(100))
package screener

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/screener-client/pkg/client"
	"github.com/Sternrassler/screener-client/pkg/criteria"
	"github.com/Sternrassler/screener-client/pkg/logging"
	"github.com/Sternrassler/screener-client/pkg/pagination"
	"github.com/Sternrassler/screener-client/pkg/record"
	"github.com/Sternrassler/screener-client/pkg/table"
)

// Retriever runs one bounded retrieval.
type Retriever interface {
	RetrieveWithStats(ctx context.Context, req *criteria.Request, target int) ([]record.Record, pagination.Stats, error)
}

// Config bundles the configuration of the default HTTP-backed stack.
type Config struct {
	Client     client.Config
	Pagination pagination.Config

	// IDFields overrides record.DefaultIDFields when set.
	IDFields []string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Client:     client.DefaultConfig(),
		Pagination: pagination.DefaultConfig(),
	}
}

// Screener retrieves screening results. It is safe for concurrent use.
type Screener struct {
	retriever Retriever
	logger    zerolog.Logger
}

// New builds a Screener backed by the HTTP dispatcher.
func New(cfg Config) (*Screener, error) {
	c, err := client.New(cfg.Client)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	controller := pagination.NewController(c, record.NewAdapter(cfg.IDFields...), cfg.Pagination)
	return NewWithRetriever(controller), nil
}

// NewWithRetriever wraps an existing retriever, typically a
// *pagination.Controller with a custom dispatcher.
func NewWithRetriever(r Retriever) *Screener {
	return &Screener{
		retriever: r,
		logger:    logging.NewLogger("screener"),
	}
}

type options struct {
	target  int
	asTable bool
}

// Option customizes a Screen call.
type Option func(*options)

// WithTarget sets the maximum number of records to retrieve. Non-positive
// values mean pagination.DefaultTarget.
func WithTarget(n int) Option {
	return func(o *options) {
		o.target = n
	}
}

// AsTable selects the table form (the default) or the plain record sequence.
func AsTable(asTable bool) Option {
	return func(o *options) {
		o.asTable = asTable
	}
}

// Screen retrieves up to the target number of records matching req.
func (s *Screener) Screen(ctx context.Context, req *criteria.Request, opts ...Option) (table.Result, error) {
	res, _, err := s.ScreenWithStats(ctx, req, opts...)
	return res, err
}

// ScreenWithStats is Screen that also reports retrieval statistics.
func (s *Screener) ScreenWithStats(ctx context.Context, req *criteria.Request, opts ...Option) (table.Result, pagination.Stats, error) {
	o := options{target: pagination.DefaultTarget, asTable: true}
	for _, opt := range opts {
		opt(&o)
	}

	records, stats, err := s.retriever.RetrieveWithStats(ctx, req, o.target)
	if err != nil {
		return table.Result{}, stats, err
	}

	s.logger.Debug().
		Str("retrieval_id", stats.RetrievalID).
		Int("records", len(records)).
		Bool("as_table", o.asTable).
		Msg("Assembling result")

	return table.Assemble(records, o.asTable), stats, nil
}
