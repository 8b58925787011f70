package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeValues_JSON(t *testing.T) {
	seen := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Entity{
		ID:   "acct-1",
		Type: EntityAccount,
		Name: "ACME Holdings Ltd",
		Attributes: map[string]Value{
			"iban":    String("GB00XXXX"),
			"balance": Number(1250.5),
			"frozen":  Bool(true),
			"opened":  Timestamp(seen),
		},
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var back Entity
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, KindString, back.Attributes["iban"].Kind)
	assert.Equal(t, 1250.5, back.Attributes["balance"].Num)
	assert.True(t, back.Attributes["frozen"].Bool)
	assert.Equal(t, KindTime, back.Attributes["opened"].Kind)
	assert.True(t, seen.Equal(back.Attributes["opened"].Time))
}

func TestValueOf_Unsupported(t *testing.T) {
	_, err := ValueOf([]interface{}{"a"})
	assert.Error(t, err)
}

func TestDeriveConfidence(t *testing.T) {
	assert.InDelta(t, 0.72, DeriveConfidence(0.9, 0.8), 1e-12)
	assert.Equal(t, 0.0, DeriveConfidence(-1, 0.5))
	assert.Equal(t, 1.0, DeriveConfidence(3, 1))
}

func TestErrorTaxonomy(t *testing.T) {
	v := fmt.Errorf("failed to upsert: %w", NewValidationError(RefRelationship, "r1", "unknown endpoint %q", "x"))
	assert.True(t, errors.Is(v, ErrValidation))
	assert.False(t, errors.Is(v, ErrConfiguration))

	var ve *ValidationError
	require.True(t, errors.As(v, &ve))
	assert.Equal(t, "r1", ve.Ref.ID)

	c := NewConfigurationError("weights", "sum is %.2f", 0.9)
	assert.True(t, errors.Is(c, ErrConfiguration))

	ev := &EmbeddingVersionError{Query: "v3", Known: []string{"v2", "v1"}}
	assert.True(t, errors.Is(ev, ErrEmbeddingVersion))
	assert.Contains(t, ev.Error(), "[v1, v2]")
}

func TestRelationshipOther(t *testing.T) {
	r := Relationship{SourceID: "a", TargetID: "b"}
	assert.Equal(t, "b", r.Other("a"))
	assert.Equal(t, "a", r.Other("b"))
	assert.True(t, Relationship{}.Inert())
}
