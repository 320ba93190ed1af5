package mirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore(t *testing.T) {
	s := NewMemStore()

	_, ok, err := s.Get("1.0.0")
	require.NoError(t, err)
	assert.False(t, ok)

	rec := Record{Tag: "1.0.0", RemoteDigest: digestV100, LocalDigest: digestV100, LastSync: time.Now(), LastResult: ResultSynced}
	require.NoError(t, s.Set(rec))
	require.NoError(t, s.Set(Record{Tag: "0.9.0", LastResult: ResultUpToDate}))

	got, ok, err := s.Get("1.0.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)

	// latest record per tag wins
	rec.LastResult = ResultUpToDate
	require.NoError(t, s.Set(rec))
	got, _, _ = s.Get("1.0.0")
	assert.Equal(t, ResultUpToDate, got.LastResult)

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "0.9.0", all[0].Tag)
}
