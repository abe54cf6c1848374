package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestDecodeJSONObject(t *testing.T) {
	input := `{"id":42,"name":"test"}`
	rec, err := DecodeJSONObject[testRecord](strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 42, rec.ID)
	assert.Equal(t, "test", rec.Name)
}

func TestDecodeJSONObject_Invalid(t *testing.T) {
	input := `not json`
	_, err := DecodeJSONObject[testRecord](strings.NewReader(input))
	require.Error(t, err)
}
