package main

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/screener-client/pkg/criteria"
	"github.com/Sternrassler/screener-client/pkg/sentinel"
)

// rangeFilter bounds one numeric field. Empty bounds are open.
type rangeFilter struct {
	Field string `json:"field"`
	Min   string `json:"min,omitempty"`
	Max   string `json:"max,omitempty"`
}

type orderFilter struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

// filterSet is the shared wire/flag form of a screening request.
type filterSet struct {
	Country     int           `json:"country"`
	Exchanges   []int         `json:"exchanges,omitempty"`
	Sectors     []int         `json:"sectors,omitempty"`
	Industries  []int         `json:"industries,omitempty"`
	EquityTypes []string      `json:"equity_types,omitempty"`
	Ranges      []rangeFilter `json:"ranges,omitempty"`
	Order       *orderFilter  `json:"order,omitempty"`
}

func (s filterSet) build() (*criteria.Request, error) {
	b := criteria.NewBuilder(s.Country).
		Exchanges(s.Exchanges...).
		Sectors(s.Sectors...).
		Industries(s.Industries...).
		EquityTypes(s.EquityTypes...)
	for _, r := range s.Ranges {
		b.Range(r.Field, r.Min, r.Max)
	}
	if s.Order != nil {
		b.OrderBy(s.Order.Column, s.Order.Desc)
	}
	return b.Build()
}

// parseRange parses "field=min:max"; either bound may be empty.
func parseRange(s string) (rangeFilter, error) {
	field, bounds, ok := strings.Cut(s, "=")
	if !ok {
		return rangeFilter{}, fmt.Errorf("%w: range %q: want field=min:max", sentinel.ErrInvalidArgument, s)
	}
	lo, hi, ok := strings.Cut(bounds, ":")
	if !ok {
		return rangeFilter{}, fmt.Errorf("%w: range %q: want field=min:max", sentinel.ErrInvalidArgument, s)
	}
	return rangeFilter{
		Field: strings.TrimSpace(field),
		Min:   strings.TrimSpace(lo),
		Max:   strings.TrimSpace(hi),
	}, nil
}
