package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Sternrassler/screener-client/pkg/sentinel"
)

// DefaultIDFields are tried in order when looking for the identifier.
var DefaultIDFields = []string{"pair_ID", "id"}

// Adapter converts raw hits into Records.
type Adapter struct {
	idFields []string
}

// NewAdapter creates an adapter that takes the identifier from the first
// present field in idFields. With no fields, DefaultIDFields is used.
func NewAdapter(idFields ...string) *Adapter {
	if len(idFields) == 0 {
		idFields = DefaultIDFields
	}
	return &Adapter{idFields: idFields}
}

// Adapt decodes one hit. The hit must be a JSON object carrying a non-empty
// identifier; anything else is a decoding failure.
func (a *Adapter) Adapt(raw json.RawMessage) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return Record{}, fmt.Errorf("%w: hit is not a JSON object: %v", sentinel.ErrDecoding, err)
	}
	if obj == nil {
		return Record{}, fmt.Errorf("%w: hit is null", sentinel.ErrDecoding)
	}

	id, idField, err := a.identifier(obj)
	if err != nil {
		return Record{}, err
	}

	attrs := make(map[string]any, len(obj))
	for key, value := range obj {
		if key == idField {
			continue
		}
		name := key
		if key == IDColumn {
			name = SourceIDColumn
		}
		if err := flatten(attrs, name, value); err != nil {
			return Record{}, err
		}
	}

	return newRecord(id, attrs), nil
}

func (a *Adapter) identifier(obj map[string]any) (string, string, error) {
	for _, field := range a.idFields {
		value, ok := obj[field]
		if !ok || value == nil {
			continue
		}

		var id string
		switch v := value.(type) {
		case string:
			id = strings.TrimSpace(v)
		case json.Number:
			id = v.String()
		default:
			return "", "", fmt.Errorf("%w: identifier %q has unsupported type %T", sentinel.ErrDecoding, field, value)
		}
		if id == "" {
			return "", "", fmt.Errorf("%w: identifier %q is empty", sentinel.ErrDecoding, field)
		}
		return id, field, nil
	}
	return "", "", fmt.Errorf("%w: hit has no identifier (tried %s)", sentinel.ErrDecoding, strings.Join(a.idFields, ", "))
}

// flatten writes value into attrs under name, expanding nested objects into
// dotted names and normalizing numbers. A name produced twice, e.g. by a
// literal "a.b" key next to {"a":{"b":...}}, is a decoding failure.
func flatten(attrs map[string]any, name string, value any) error {
	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 {
			return setAttr(attrs, name, nil)
		}
		for key, nested := range v {
			if err := flatten(attrs, name+"."+key, nested); err != nil {
				return err
			}
		}
		return nil
	case json.Number:
		return setAttr(attrs, name, normalizeNumber(v))
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			if n, ok := item.(json.Number); ok {
				out[i] = normalizeNumber(n)
			} else {
				out[i] = item
			}
		}
		return setAttr(attrs, name, out)
	default:
		return setAttr(attrs, name, v)
	}
}

func setAttr(attrs map[string]any, name string, value any) error {
	if _, dup := attrs[name]; dup {
		return fmt.Errorf("%w: attribute %q appears more than once", sentinel.ErrDecoding, name)
	}
	attrs[name] = value
	return nil
}

func normalizeNumber(n json.Number) any {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return n.String()
	}
	return d
}
