package vectorstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/askd/internal/vectorstore"
)

func TestFlattenReconstructRoundTrip(t *testing.T) {
	attrs := map[string]any{
		"key":      "PROJ-42",
		"priority": "High",
		"version":  int64(7),
		"score":    0.25,
		"archived": false,
		"labels":   []string{"backend", "urgent"},
		"counts":   []int64{1, 2, 3},
		"weights":  []float64{0.5, 1.5},
		"flags":    []bool{true, false},
	}

	flat, err := vectorstore.Flatten(attrs)
	require.NoError(t, err)

	got, err := vectorstore.Reconstruct(flat)
	require.NoError(t, err)
	assert.Equal(t, attrs, got)
}

func TestFlattenIntBecomesInt64(t *testing.T) {
	flat, err := vectorstore.Flatten(map[string]any{"version": 3})
	require.NoError(t, err)

	got, err := vectorstore.Reconstruct(flat)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got["version"])
}

func TestFlattenEmptyAndSingleLists(t *testing.T) {
	attrs := map[string]any{
		"empty":  []string{},
		"single": []string{""},
	}

	flat, err := vectorstore.Flatten(attrs)
	require.NoError(t, err)

	got, err := vectorstore.Reconstruct(flat)
	require.NoError(t, err)

	assert.Equal(t, []string{}, got["empty"])
	assert.Equal(t, []string{""}, got["single"])
}

func TestFlattenRejectsNestedMap(t *testing.T) {
	_, err := vectorstore.Flatten(map[string]any{
		"nested": map[string]any{"inner": "value"},
	})
	require.ErrorIs(t, err, vectorstore.ErrUnsupportedShape)
}

func TestFlattenRejectsUnsupportedType(t *testing.T) {
	_, err := vectorstore.Flatten(map[string]any{
		"ch": make(chan int),
	})
	require.ErrorIs(t, err, vectorstore.ErrUnsupportedShape)
}

func TestFlattenRejectsReservedKey(t *testing.T) {
	_, err := vectorstore.Flatten(map[string]any{
		"_seq": "value",
	})
	require.ErrorIs(t, err, vectorstore.ErrUnsupportedShape)
}

func TestFlattenRejectsDelimiterInListElement(t *testing.T) {
	_, err := vectorstore.Flatten(map[string]any{
		"labels": []string{"fine", "bad\x1felement"},
	})
	require.ErrorIs(t, err, vectorstore.ErrDelimiterCollision)
}

func TestFlattenAllowsDelimiterInScalarString(t *testing.T) {
	attrs := map[string]any{"title": "a\x1fb"}

	flat, err := vectorstore.Flatten(attrs)
	require.NoError(t, err)

	got, err := vectorstore.Reconstruct(flat)
	require.NoError(t, err)
	assert.Equal(t, "a\x1fb", got["title"])
}

func TestReconstructSkipsInternalKeys(t *testing.T) {
	flat, err := vectorstore.Flatten(map[string]any{"key": "PROJ-1"})
	require.NoError(t, err)
	flat["_seq"] = "12345"

	got, err := vectorstore.Reconstruct(flat)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"key": "PROJ-1"}, got)
}

func TestReconstructMalformedValue(t *testing.T) {
	cases := map[string]string{
		"no prefix":      "plainvalue",
		"unknown kind":   "x:value",
		"bad int":        "i:notanumber",
		"bad bool":       "b:maybe",
		"bad list count": "ls:3\x1fonly\x1ftwo",
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := vectorstore.Reconstruct(map[string]string{"v": encoded})
			require.ErrorIs(t, err, vectorstore.ErrMalformedValue)
		})
	}
}

func TestEncodeFilterMatchesStoredEncoding(t *testing.T) {
	flat, err := vectorstore.Flatten(map[string]any{
		"priority": "High",
		"version":  int64(2),
	})
	require.NoError(t, err)

	where, err := vectorstore.EncodeFilter(map[string]any{
		"priority": "High",
		"version":  int64(2),
	})
	require.NoError(t, err)

	assert.Equal(t, flat["priority"], where["priority"])
	assert.Equal(t, flat["version"], where["version"])
}

func TestEncodeFilterRejectsListValue(t *testing.T) {
	_, err := vectorstore.EncodeFilter(map[string]any{
		"labels": []string{"backend"},
	})
	require.ErrorIs(t, err, vectorstore.ErrUnsupportedShape)
}

func TestEncodeFilterEmpty(t *testing.T) {
	where, err := vectorstore.EncodeFilter(nil)
	require.NoError(t, err)
	assert.Nil(t, where)
}
