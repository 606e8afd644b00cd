package quantum

import (
	"fmt"

	"github.com/google/uuid"
)

// View addresses an ordered subset of a root register's qubits. It is a
// relation, never a copy: local bit i of a view maps to offsets[i] in the root.
type View struct {
	root    uuid.UUID
	offsets []int
}

// View returns a view over the given offsets of r.
func (r *Register) View(offsets ...int) (View, error) {
	if err := r.checkOffsets(offsets, nil); err != nil {
		return View{}, err
	}
	return View{root: r.id, offsets: append([]int(nil), offsets...)}, nil
}

// Qubit returns a single-qubit view.
func (r *Register) Qubit(offset int) (View, error) {
	return r.View(offset)
}

// Root identifies the register the view belongs to.
func (v View) Root() uuid.UUID {
	return v.root
}

// Offsets returns a copy of the root offsets the view exposes.
func (v View) Offsets() []int {
	return append([]int(nil), v.offsets...)
}

// Width returns the number of qubits the view covers.
func (v View) Width() int {
	return len(v.offsets)
}

// Mask returns the root-index bits covered by the view.
func (v View) Mask() uint64 {
	return offsetMask(v.offsets)
}

func (v View) String() string {
	return fmt.Sprintf("view%v@%s", v.offsets, v.root.String()[:8])
}

func (r *Register) owns(v View) error {
	if v.root != r.id {
		return fmt.Errorf("%w: %s", ErrForeignView, v)
	}
	return r.checkOffsets(v.offsets, nil)
}

// checkOffsets validates offsets against the width and against each other and
// the already-claimed set.
func (r *Register) checkOffsets(offsets []int, claimed map[int]bool) error {
	if len(offsets) == 0 {
		return fmt.Errorf("%w: empty offset list", ErrInvalidOffset)
	}
	seen := make(map[int]bool, len(offsets))
	for _, o := range offsets {
		if o < 0 || o >= r.width {
			return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidOffset, o, r.width)
		}
		if seen[o] || claimed[o] {
			return fmt.Errorf("%w: %d", ErrDuplicateOffset, o)
		}
		seen[o] = true
	}
	return nil
}

func offsetMask(offsets []int) uint64 {
	var mask uint64
	for _, o := range offsets {
		mask |= 1 << uint(o)
	}
	return mask
}

// gather extracts the view-local index from a root index.
func gather(index uint64, offsets []int) int {
	local := 0
	for i, o := range offsets {
		if index&(1<<uint(o)) != 0 {
			local |= 1 << i
		}
	}
	return local
}

// scatter places a view-local index onto root bit positions.
func scatter(local int, offsets []int) uint64 {
	var index uint64
	for i, o := range offsets {
		if local&(1<<i) != 0 {
			index |= 1 << uint(o)
		}
	}
	return index
}
