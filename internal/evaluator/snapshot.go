package evaluator

import (
	"fmt"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"qtermsim/internal/quantum"
)

// snapshotRecord is the encoded form of a register state at one cursor.
// Amplitudes are split into parallel slices in ascending key order.
type snapshotRecord struct {
	Cursor int       `msgpack:"cursor"`
	Width  int       `msgpack:"width"`
	Keys   []uint64  `msgpack:"keys"`
	Re     []float64 `msgpack:"re"`
	Im     []float64 `msgpack:"im"`
}

func encodeSnapshot(cursor, width int, amps quantum.Amplitudes) ([]byte, error) {
	keys := amps.SortedKeys()
	rec := snapshotRecord{
		Cursor: cursor,
		Width:  width,
		Keys:   keys,
		Re:     make([]float64, len(keys)),
		Im:     make([]float64, len(keys)),
	}
	for i, k := range keys {
		rec.Re[i] = real(amps[k])
		rec.Im[i] = imag(amps[k])
	}
	return msgpack.Marshal(&rec)
}

func decodeSnapshot(data []byte) (snapshotRecord, quantum.Amplitudes, error) {
	var rec snapshotRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return snapshotRecord{}, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if len(rec.Re) != len(rec.Keys) || len(rec.Im) != len(rec.Keys) {
		return snapshotRecord{}, nil, fmt.Errorf("decode snapshot: %d keys, %d re, %d im",
			len(rec.Keys), len(rec.Re), len(rec.Im))
	}
	amps := make(quantum.Amplitudes, len(rec.Keys))
	for i, k := range rec.Keys {
		amps[k] = complex(rec.Re[i], rec.Im[i])
	}
	return rec, amps, nil
}

// snapshotCache holds encoded states at every interval-th cursor. States are
// a pure function of the loaded circuit, so entries stay valid until reload.
type snapshotCache struct {
	interval int
	entries  map[int][]byte
}

func newSnapshotCache(interval int) *snapshotCache {
	return &snapshotCache{interval: interval, entries: make(map[int][]byte)}
}

func (s *snapshotCache) enabled() bool {
	return s.interval > 0
}

// wants reports whether cursor is a snapshot point not yet stored.
func (s *snapshotCache) wants(cursor int) bool {
	if !s.enabled() || cursor == 0 || cursor%s.interval != 0 {
		return false
	}
	_, ok := s.entries[cursor]
	return !ok
}

func (s *snapshotCache) store(cursor int, reg *quantum.Register) error {
	data, err := encodeSnapshot(cursor, reg.Width(), reg.Read())
	if err != nil {
		return fmt.Errorf("encode snapshot at %d: %w", cursor, err)
	}
	s.entries[cursor] = data
	return nil
}

// nearest returns the latest snapshot at or before cursor.
func (s *snapshotCache) nearest(cursor int) (int, quantum.Amplitudes, bool, error) {
	best := -1
	for at := range s.entries {
		if at <= cursor && at > best {
			best = at
		}
	}
	if best < 0 {
		return 0, nil, false, nil
	}
	_, amps, err := decodeSnapshot(s.entries[best])
	if err != nil {
		return 0, nil, false, err
	}
	return best, amps, true, nil
}

func (s *snapshotCache) cursors() []int {
	out := make([]int, 0, len(s.entries))
	for at := range s.entries {
		out = append(out, at)
	}
	slices.Sort(out)
	return out
}

func (s *snapshotCache) reset() {
	s.entries = make(map[int][]byte)
}
