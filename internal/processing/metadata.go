package processing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"statements-backend/internal/shared/apperr"
)

// MetadataType discriminates the payload carried by a MetadataValue.
type MetadataType string

const (
	MetadataText        MetadataType = "text"
	MetadataNumber      MetadataType = "number"
	MetadataBoolean     MetadataType = "boolean"
	MetadataSelect      MetadataType = "select"
	MetadataMultiSelect MetadataType = "multiselect"
	MetadataStructured  MetadataType = "structured"
)

const (
	maxMetadataKeys    = 50
	maxMetadataKeyLen  = 64
	maxMetadataTextLen = 4096
)

// MetadataValue is a tagged variant. Exactly one payload field is set and it
// must match Type.
type MetadataValue struct {
	Type       MetadataType
	Text       *string
	Number     *float64
	Boolean    *bool
	Choice     *string
	Choices    []string
	Structured map[string]any
	// Options constrains select and multiselect values when non-empty.
	Options []string
}

func TextValue(s string) MetadataValue { return MetadataValue{Type: MetadataText, Text: &s} }

func NumberValue(f float64) MetadataValue { return MetadataValue{Type: MetadataNumber, Number: &f} }

func BoolValue(b bool) MetadataValue { return MetadataValue{Type: MetadataBoolean, Boolean: &b} }

func SelectValue(choice string, options ...string) MetadataValue {
	return MetadataValue{Type: MetadataSelect, Choice: &choice, Options: options}
}

func MultiSelectValue(choices []string, options ...string) MetadataValue {
	return MetadataValue{Type: MetadataMultiSelect, Choices: choices, Options: options}
}

func StructuredValue(v map[string]any) MetadataValue {
	return MetadataValue{Type: MetadataStructured, Structured: v}
}

type metadataWire struct {
	Type    MetadataType    `json:"type"`
	Value   json.RawMessage `json:"value"`
	Options []string        `json:"options,omitempty"`
}

// MarshalJSON encodes the value as {"type","value","options"}.
func (v MetadataValue) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.Type {
	case MetadataText:
		payload = v.Text
	case MetadataNumber:
		payload = v.Number
	case MetadataBoolean:
		payload = v.Boolean
	case MetadataSelect:
		payload = v.Choice
	case MetadataMultiSelect:
		payload = v.Choices
	case MetadataStructured:
		payload = v.Structured
	default:
		return nil, fmt.Errorf("unknown metadata type %q", v.Type)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(metadataWire{Type: v.Type, Value: raw, Options: v.Options})
}

// UnmarshalJSON decodes the wire form and validates the payload shape.
func (v *MetadataValue) UnmarshalJSON(data []byte) error {
	var w metadataWire
	if err := json.Unmarshal(data, &w); err != nil {
		return apperr.Validation("metadata", "malformed value")
	}
	if len(bytes.TrimSpace(w.Value)) == 0 || bytes.Equal(bytes.TrimSpace(w.Value), []byte("null")) {
		return apperr.Validation("metadata", "value is required")
	}

	out := MetadataValue{Type: w.Type, Options: w.Options}
	var err error
	switch w.Type {
	case MetadataText:
		var s string
		err = json.Unmarshal(w.Value, &s)
		out.Text = &s
	case MetadataNumber:
		var f float64
		err = json.Unmarshal(w.Value, &f)
		out.Number = &f
	case MetadataBoolean:
		var b bool
		err = json.Unmarshal(w.Value, &b)
		out.Boolean = &b
	case MetadataSelect:
		var s string
		err = json.Unmarshal(w.Value, &s)
		out.Choice = &s
	case MetadataMultiSelect:
		err = json.Unmarshal(w.Value, &out.Choices)
	case MetadataStructured:
		err = json.Unmarshal(w.Value, &out.Structured)
	default:
		return apperr.Validation("metadata", fmt.Sprintf("unknown type %q", w.Type))
	}
	if err != nil {
		return apperr.Validation("metadata", fmt.Sprintf("value does not match type %q", w.Type))
	}
	*v = out
	return nil
}

// Validate checks that exactly the payload for Type is present and well formed.
func (v MetadataValue) Validate(key string) error {
	field := "metadata." + key
	set := 0
	for _, present := range []bool{
		v.Text != nil, v.Number != nil, v.Boolean != nil, v.Choice != nil,
		v.Choices != nil, v.Structured != nil,
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return apperr.Validation(field, "exactly one value must be set")
	}

	switch v.Type {
	case MetadataText:
		if v.Text == nil {
			return apperr.Validation(field, "text value required")
		}
		if len(*v.Text) > maxMetadataTextLen {
			return apperr.Validation(field, "text value too long")
		}
	case MetadataNumber:
		if v.Number == nil {
			return apperr.Validation(field, "number value required")
		}
		if math.IsNaN(*v.Number) || math.IsInf(*v.Number, 0) {
			return apperr.Validation(field, "number must be finite")
		}
	case MetadataBoolean:
		if v.Boolean == nil {
			return apperr.Validation(field, "boolean value required")
		}
	case MetadataSelect:
		if v.Choice == nil || *v.Choice == "" {
			return apperr.Validation(field, "select value required")
		}
		if len(v.Options) > 0 && !contains(v.Options, *v.Choice) {
			return apperr.Validation(field, fmt.Sprintf("%q is not an allowed option", *v.Choice))
		}
	case MetadataMultiSelect:
		if v.Choices == nil {
			return apperr.Validation(field, "multiselect values required")
		}
		seen := make(map[string]struct{}, len(v.Choices))
		for _, c := range v.Choices {
			if _, dup := seen[c]; dup {
				return apperr.Validation(field, fmt.Sprintf("duplicate option %q", c))
			}
			seen[c] = struct{}{}
			if len(v.Options) > 0 && !contains(v.Options, c) {
				return apperr.Validation(field, fmt.Sprintf("%q is not an allowed option", c))
			}
		}
	case MetadataStructured:
		if v.Structured == nil {
			return apperr.Validation(field, "structured value must be an object")
		}
	default:
		return apperr.Validation(field, fmt.Sprintf("unknown type %q", v.Type))
	}
	if len(v.Options) > 0 && v.Type != MetadataSelect && v.Type != MetadataMultiSelect {
		return apperr.Validation(field, "options only apply to select and multiselect")
	}
	return nil
}

// Metadata is the descriptive tag set attached to a queue item.
type Metadata map[string]MetadataValue

// Validate checks key shape and every value.
func (m Metadata) Validate() error {
	if len(m) > maxMetadataKeys {
		return apperr.Validation("metadata", fmt.Sprintf("at most %d keys allowed", maxMetadataKeys))
	}
	for _, k := range m.Keys() {
		if k == "" || len(k) > maxMetadataKeyLen {
			return apperr.Validation("metadata", "keys must be 1-64 characters")
		}
		if err := m[k].Validate(k); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns the keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone copies the map and its slices. Structured payloads are shared.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		if v.Choices != nil {
			v.Choices = append([]string(nil), v.Choices...)
		}
		if v.Options != nil {
			v.Options = append([]string(nil), v.Options...)
		}
		out[k] = v
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
