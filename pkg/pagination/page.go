package pagination

import (
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/screener-client/pkg/sentinel"
)

// Page is one decoded response of the search service.
type Page struct {
	TotalCount int
	Hits       []json.RawMessage
}

type wirePage struct {
	TotalCount *int               `json:"totalCount"`
	Hits       *[]json.RawMessage `json:"hits"`
}

// DecodePage parses a response body. Both totalCount and hits must be
// present; a negative total or a null hits array is rejected.
func DecodePage(body []byte) (*Page, error) {
	var wire wirePage
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: page body: %v", sentinel.ErrDecoding, err)
	}
	if wire.TotalCount == nil {
		return nil, fmt.Errorf("%w: page body has no totalCount", sentinel.ErrDecoding)
	}
	if *wire.TotalCount < 0 {
		return nil, fmt.Errorf("%w: negative totalCount %d", sentinel.ErrDecoding, *wire.TotalCount)
	}
	if wire.Hits == nil {
		return nil, fmt.Errorf("%w: page body has no hits", sentinel.ErrDecoding)
	}

	return &Page{
		TotalCount: *wire.TotalCount,
		Hits:       *wire.Hits,
	}, nil
}
