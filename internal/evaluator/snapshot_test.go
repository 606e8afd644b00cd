package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qtermsim/internal/quantum"
)

func TestSnapshotEncoding(t *testing.T) {
	amps := quantum.Amplitudes{0: complex(0.6, 0), 5: complex(0, -0.8)}
	data, err := encodeSnapshot(4, 3, amps)
	require.NoError(t, err)

	rec, got, err := decodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Cursor)
	assert.Equal(t, 3, rec.Width)
	assert.Equal(t, []uint64{0, 5}, rec.Keys)
	assert.Equal(t, amps, got)
}

func TestSnapshotDecode_Corrupt(t *testing.T) {
	_, _, err := decodeSnapshot([]byte{0xc1})
	assert.Error(t, err)
}

func TestSnapshotCache(t *testing.T) {
	s := newSnapshotCache(3)
	assert.False(t, s.wants(0))
	assert.False(t, s.wants(2))
	assert.True(t, s.wants(3))

	reg, err := quantum.NewRegister(2)
	require.NoError(t, err)
	require.NoError(t, s.store(3, reg))
	assert.False(t, s.wants(3))

	_, _, ok, err := s.nearest(2)
	require.NoError(t, err)
	assert.False(t, ok)

	at, amps, ok, err := s.nearest(5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, at)
	assert.Equal(t, quantum.Amplitudes{0: 1}, amps)

	s.reset()
	assert.Empty(t, s.cursors())

	disabled := newSnapshotCache(0)
	assert.False(t, disabled.wants(4))
}
