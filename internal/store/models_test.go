package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeOwnerID(t *testing.T) {
	cases := map[string]OwnerID{
		"Alice":          "alice",
		"  Bob Smith \t": "bobsmith",
		"MIXED case\nID": "mixedcaseid",
		"already":        "already",
	}
	for raw, want := range cases {
		got, err := NormalizeOwnerID(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	_, err := NormalizeOwnerID(" \t\n")
	require.ErrorIs(t, err, ErrInvalidOwner)
}

func TestRecordEmbedsLastSaved(t *testing.T) {
	rec := Record{Fields: map[string]any{"coins": 40, "level": "3"}, LastSaved: 1700000000123}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.JSONEq(t, `{"coins":40,"level":"3","lastSaved":1700000000123}`, string(data))

	var decoded Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, int64(1700000000123), decoded.LastSaved)
	require.NotContains(t, decoded.Fields, LastSavedField)
	require.Equal(t, json.Number("40"), decoded.Fields["coins"])
}

func TestRecordWithoutLastSaved(t *testing.T) {
	var decoded Record
	require.NoError(t, json.Unmarshal([]byte(`{"xp":1}`), &decoded))
	require.Zero(t, decoded.LastSaved)

	require.Error(t, json.Unmarshal([]byte(`{"lastSaved":"yesterday"}`), &decoded))
}

func TestNextVersion(t *testing.T) {
	next, ok := NextVersion(0, 0)
	require.True(t, ok)
	require.Equal(t, int64(1), next)

	next, ok = NextVersion(4, 4)
	require.True(t, ok)
	require.Equal(t, int64(5), next)

	// unknown client version never conflicts
	next, ok = NextVersion(4, 0)
	require.True(t, ok)
	require.Equal(t, int64(5), next)

	_, ok = NextVersion(5, 3)
	require.False(t, ok)
}
