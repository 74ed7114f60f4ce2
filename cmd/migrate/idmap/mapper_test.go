package idmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndResolveByName(t *testing.T) {
	m := New()
	require.NoError(t, m.Record(Record{Name: "Parent", OldID: "old-1", NewID: "new-1"}))

	rec, ok := m.Resolve("Parent", "")
	require.True(t, ok)
	assert.Equal(t, "new-1", rec.NewID)
}

func TestResolveFallsBackToOldID(t *testing.T) {
	m := New()
	require.NoError(t, m.Record(Record{Name: "Parent", OldID: "old-1", NewID: "new-1"}))

	rec, ok := m.Resolve("", "old-1")
	require.True(t, ok)
	assert.Equal(t, "new-1", rec.NewID)
}

func TestResolvePrefersNameOverOldID(t *testing.T) {
	m := New()
	require.NoError(t, m.Record(Record{Name: "Parent", OldID: "old-1", NewID: "new-1"}))
	require.NoError(t, m.Record(Record{Name: "Other", OldID: "old-2", NewID: "new-2"}))

	// hint matches Parent by name even though oldID matches Other.
	rec, ok := m.Resolve("Parent", "old-2")
	require.True(t, ok)
	assert.Equal(t, "new-1", rec.NewID)
}

func TestRecordRejectsConflictingDuplicate(t *testing.T) {
	m := New()
	require.NoError(t, m.Record(Record{Name: "Parent", OldID: "old-1", NewID: "new-1"}))

	err := m.Record(Record{Name: "Parent", OldID: "old-1", NewID: "new-2"})
	require.Error(t, err)
	var dup *DuplicateMappingError
	assert.ErrorAs(t, err, &dup)
}

func TestRecordAllowsIdempotentRerecord(t *testing.T) {
	m := New()
	require.NoError(t, m.Record(Record{Name: "Parent", OldID: "old-1", NewID: "new-1"}))
	require.NoError(t, m.Record(Record{Name: "Parent", OldID: "old-1", NewID: "new-1"}))
	assert.Equal(t, 1, m.Len())
}

func TestSerializeIsSortedByName(t *testing.T) {
	m := New()
	require.NoError(t, m.Record(Record{Name: "Bravo", NewID: "n2"}))
	require.NoError(t, m.Record(Record{Name: "Alpha", NewID: "n1"}))

	out, err := m.Serialize()
	require.NoError(t, err)
	assert.Regexp(t, `(?s)"Alpha".*"Bravo"`, string(out))
}
