package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/screener-client/pkg/record"
	"github.com/Sternrassler/screener-client/pkg/screener"
	"github.com/Sternrassler/screener-client/pkg/table/export"
)

type runOptions struct {
	filters filterSet
	ranges  []string
	order   string
	desc    bool
	target  int
	plain   bool
	format  string
	output  string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Retrieve one screening request",
		Example: `  screener run --country 5 --exchange 1,2 --target 100 --output us.csv
  screener run --country 5 --range eq_market_cap=1000000000: --order eq_market_cap --desc --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.target == 0 {
				opts.target = cfg.Pagination.Target
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runScreen(ctx, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.filters.Country, "country", 0, "country ID (required)")
	f.IntSliceVar(&opts.filters.Exchanges, "exchange", nil, "exchange IDs")
	f.IntSliceVar(&opts.filters.Sectors, "sector", nil, "sector IDs")
	f.IntSliceVar(&opts.filters.Industries, "industry", nil, "industry IDs")
	f.StringSliceVar(&opts.filters.EquityTypes, "equity-type", nil, "equity types (ORD, ETF, ...)")
	f.StringArrayVar(&opts.ranges, "range", nil, "numeric range as field=min:max, repeatable")
	f.StringVar(&opts.order, "order", "", "sort column")
	f.BoolVar(&opts.desc, "desc", false, "sort descending")
	f.IntVarP(&opts.target, "target", "n", 0, "maximum number of records (default from config)")
	f.BoolVar(&opts.plain, "plain", false, "write records as JSON lines instead of a table")
	f.StringVarP(&opts.format, "format", "f", "csv", "table format on stdout: csv or json")
	f.StringVarP(&opts.output, "output", "o", "", "write the table to a file; format follows the extension")
	_ = cmd.MarkFlagRequired("country")

	return cmd
}

func runScreen(ctx context.Context, opts *runOptions, stdout io.Writer) error {
	filters := opts.filters
	for _, raw := range opts.ranges {
		r, err := parseRange(raw)
		if err != nil {
			return err
		}
		filters.Ranges = append(filters.Ranges, r)
	}
	if opts.order != "" {
		filters.Order = &orderFilter{Column: opts.order, Desc: opts.desc}
	}

	req, err := filters.build()
	if err != nil {
		return err
	}

	var exporter export.Exporter
	if !opts.plain {
		if opts.output != "" {
			exporter, err = export.ForPath(opts.output)
		} else {
			exporter, err = export.ForFormat(opts.format)
		}
		if err != nil {
			return err
		}
	}

	s, _, cleanup, err := buildScreener(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	res, stats, err := s.ScreenWithStats(ctx, req,
		screener.WithTarget(opts.target),
		screener.AsTable(!opts.plain),
	)
	if err != nil {
		return err
	}

	log.Info().
		Str("retrieval_id", stats.RetrievalID).
		Int("records", stats.Records).
		Int("pages", stats.Pages).
		Int("total_count", stats.TotalCount).
		Msg("Screening finished")

	switch {
	case opts.plain:
		return writeRecords(res.Records, stdout)
	case opts.output != "":
		if err := export.WriteFile(exporter, res.Table, opts.output); err != nil {
			return err
		}
		log.Info().Str("path", opts.output).Msg("Table written")
		return nil
	default:
		return exporter.Export(res.Table, stdout)
	}
}

func writeRecords(records []record.Record, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, r := range records {
		if err := enc.Encode(r.AsMap()); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	return nil
}
