package processing

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statements-backend/internal/shared/apperr"
)

func TestMetadataDecodesEachVariant(t *testing.T) {
	body := `{
		"note":     {"type":"text","value":"statement from branch"},
		"pages":    {"type":"number","value":12},
		"reviewed": {"type":"boolean","value":true},
		"source":   {"type":"select","value":"bank","options":["bank","card"]},
		"labels":   {"type":"multiselect","value":["q1","tax"],"options":["q1","q2","tax"]},
		"extra":    {"type":"structured","value":{"iban":"DE00","pages":[1,2]}}
	}`

	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(body), &md))
	require.NoError(t, md.Validate())

	assert.Equal(t, "statement from branch", *md["note"].Text)
	assert.Equal(t, 12.0, *md["pages"].Number)
	assert.True(t, *md["reviewed"].Boolean)
	assert.Equal(t, "bank", *md["source"].Choice)
	assert.Equal(t, []string{"q1", "tax"}, md["labels"].Choices)
	assert.Equal(t, "DE00", md["extra"].Structured["iban"])
	assert.Equal(t, []string{"extra", "labels", "note", "pages", "reviewed", "source"}, md.Keys())
}

func TestMetadataRejectsMismatchedPayload(t *testing.T) {
	cases := map[string]string{
		"number as text":      `{"type":"number","value":"12"}`,
		"unknown type":        `{"type":"date","value":"2026-01-01"}`,
		"missing value":       `{"type":"text"}`,
		"null value":          `{"type":"boolean","value":null}`,
		"structured as array": `{"type":"structured","value":[1,2]}`,
		"not an object":       `"plain"`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var v MetadataValue
			err := json.Unmarshal([]byte(raw), &v)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
		})
	}
}

func TestMetadataValidateOptionsAndShape(t *testing.T) {
	assert.NoError(t, Metadata{"s": SelectValue("bank", "bank", "card")}.Validate())
	assert.Error(t, Metadata{"s": SelectValue("cash", "bank", "card")}.Validate())
	assert.NoError(t, Metadata{"s": SelectValue("anything")}.Validate())

	assert.Error(t, Metadata{"m": MultiSelectValue([]string{"a", "a"})}.Validate())
	assert.Error(t, Metadata{"m": MultiSelectValue([]string{"a", "z"}, "a", "b")}.Validate())

	assert.Error(t, Metadata{"n": NumberValue(math.Inf(1))}.Validate())
	assert.Error(t, Metadata{"": TextValue("x")}.Validate())

	twoPayloads := TextValue("x")
	b := true
	twoPayloads.Boolean = &b
	err := Metadata{"t": twoPayloads}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one value")

	withOptions := TextValue("x")
	withOptions.Options = []string{"x"}
	assert.Error(t, Metadata{"t": withOptions}.Validate())
}

func TestMetadataMarshalUsesWireForm(t *testing.T) {
	out, err := json.Marshal(Metadata{"source": SelectValue("bank", "bank", "card")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":{"type":"select","value":"bank","options":["bank","card"]}}`, string(out))
}
