// Package criteria builds validated, immutable screening requests.
//
// A Request can only be obtained from Builder.Build, which rejects invalid
// criteria with an error wrapping sentinel.ErrInvalidArgument. Consumers never
// re-check the criteria shape.
package criteria

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Sternrassler/screener-client/pkg/sentinel"
)

// PageField is the form field carrying the 1-indexed page cursor.
const PageField = "pn"

// Equity types accepted by the screener service.
var knownEquityTypes = map[string]bool{
	"ORD": true, "DRC": true, "Preferred": true, "Unit": true,
	"ClosedEnd": true, "REIT": true, "ELKS": true, "OpenEnd": true,
	"Right": true, "ParticipationShare": true, "CapitalSecurity": true,
	"PerpetualCapitalSecurity": true, "GuaranteeCertificate": true,
	"IGC": true, "Warrant": true, "SeniorNote": true, "Debenture": true,
	"ETF": true, "ADR": true, "ETC": true, "ETN": true,
}

// Range bounds a numeric screening field. A nil bound is open.
type Range struct {
	Min *decimal.Decimal
	Max *decimal.Decimal
}

// Order selects the server-side sort column.
type Order struct {
	Column string
	Desc   bool
}

// Builder collects filter criteria. The zero value is usable.
type Builder struct {
	country     int
	exchanges   []int
	sectors     []int
	industries  []int
	equityTypes []string
	ranges      map[string]Range
	order       *Order
	errs        []error
}

// NewBuilder returns a builder for instruments listed in the given country.
func NewBuilder(country int) *Builder {
	return &Builder{country: country}
}

// Country sets the country ID.
func (b *Builder) Country(id int) *Builder {
	b.country = id
	return b
}

// Exchanges restricts results to the given exchange IDs.
func (b *Builder) Exchanges(ids ...int) *Builder {
	b.exchanges = append(b.exchanges, ids...)
	return b
}

// Sectors restricts results to the given sector IDs.
func (b *Builder) Sectors(ids ...int) *Builder {
	b.sectors = append(b.sectors, ids...)
	return b
}

// Industries restricts results to the given industry IDs.
func (b *Builder) Industries(ids ...int) *Builder {
	b.industries = append(b.industries, ids...)
	return b
}

// EquityTypes restricts results to the given equity types (e.g. "ORD", "ETF").
func (b *Builder) EquityTypes(types ...string) *Builder {
	b.equityTypes = append(b.equityTypes, types...)
	return b
}

// Range bounds a numeric field such as "eq_market_cap". Empty strings leave
// the corresponding bound open.
func (b *Builder) Range(field, lo, hi string) *Builder {
	var r Range
	if lo != "" {
		d, err := decimal.NewFromString(lo)
		if err != nil {
			b.errs = append(b.errs, fmt.Errorf("range %q: min %q: %w", field, lo, err))
		} else {
			r.Min = &d
		}
	}
	if hi != "" {
		d, err := decimal.NewFromString(hi)
		if err != nil {
			b.errs = append(b.errs, fmt.Errorf("range %q: max %q: %w", field, hi, err))
		} else {
			r.Max = &d
		}
	}
	if b.ranges == nil {
		b.ranges = make(map[string]Range)
	}
	b.ranges[field] = r
	return b
}

// OrderBy sets the sort column.
func (b *Builder) OrderBy(column string, desc bool) *Builder {
	b.order = &Order{Column: column, Desc: desc}
	return b
}

// Build validates the collected criteria and freezes them into a Request.
func (b *Builder) Build() (*Request, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: criteria builder is nil", sentinel.ErrInvalidArgument)
	}
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrInvalidArgument, b.errs[0])
	}
	if b.country <= 0 {
		return nil, fmt.Errorf("%w: country must be a positive ID (got %d)", sentinel.ErrInvalidArgument, b.country)
	}
	for name, ids := range map[string][]int{"exchange": b.exchanges, "sector": b.sectors, "industry": b.industries} {
		for _, id := range ids {
			if id <= 0 {
				return nil, fmt.Errorf("%w: %s must be a positive ID (got %d)", sentinel.ErrInvalidArgument, name, id)
			}
		}
	}
	for _, t := range b.equityTypes {
		if !knownEquityTypes[t] {
			return nil, fmt.Errorf("%w: unknown equity type %q", sentinel.ErrInvalidArgument, t)
		}
	}
	for field, r := range b.ranges {
		if strings.TrimSpace(field) == "" {
			return nil, fmt.Errorf("%w: range field name is empty", sentinel.ErrInvalidArgument)
		}
		if r.Min == nil && r.Max == nil {
			return nil, fmt.Errorf("%w: range %q has no bounds", sentinel.ErrInvalidArgument, field)
		}
		if r.Min != nil && r.Max != nil && r.Min.GreaterThan(*r.Max) {
			return nil, fmt.Errorf("%w: range %q min %s exceeds max %s", sentinel.ErrInvalidArgument, field, r.Min, r.Max)
		}
	}
	if b.order != nil && strings.TrimSpace(b.order.Column) == "" {
		return nil, fmt.Errorf("%w: order column is empty", sentinel.ErrInvalidArgument)
	}

	return &Request{form: b.encode(), finalized: true}, nil
}

func (b *Builder) encode() url.Values {
	form := url.Values{}
	form.Add("country[]", strconv.Itoa(b.country))
	for _, id := range b.exchanges {
		form.Add("exchange[]", strconv.Itoa(id))
	}
	if len(b.sectors) > 0 {
		form.Set("sector", joinInts(b.sectors))
	}
	if len(b.industries) > 0 {
		form.Set("industry", joinInts(b.industries))
	}
	if len(b.equityTypes) > 0 {
		form.Set("equityType", strings.Join(b.equityTypes, ","))
	}

	fields := make([]string, 0, len(b.ranges))
	for field := range b.ranges {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		r := b.ranges[field]
		if r.Min != nil {
			form.Set(field+"[min]", r.Min.String())
		}
		if r.Max != nil {
			form.Set(field+"[max]", r.Max.String())
		}
	}

	if b.order != nil {
		dir := "a"
		if b.order.Desc {
			dir = "d"
		}
		form.Set("order[col]", b.order.Column)
		form.Set("order[dir]", dir)
	}
	return form
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
