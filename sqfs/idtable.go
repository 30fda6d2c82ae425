package sqfs

import "github.com/pkg/errors"

// IDTable maps uids and gids to the 16 bit indices stored in inodes. Indices
// follow first use.
type IDTable struct {
	ids   []uint32
	index map[uint32]uint16
}

// Index returns the index of id, appending it if it is new.
func (t *IDTable) Index(id uint32) (uint16, error) {
	if i, ok := t.index[id]; ok {
		return i, nil
	}
	if len(t.ids) >= MaxIDs {
		return 0, errors.Wrapf(ErrTooManyIDs, "adding id %d (limit %d)", id, MaxIDs)
	}
	if t.index == nil {
		t.index = make(map[uint32]uint16)
	}
	i := uint16(len(t.ids))
	t.ids = append(t.ids, id)
	t.index[id] = i
	return i, nil
}

func (t *IDTable) Len() int { return len(t.ids) }

// ID returns the id stored at index i.
func (t *IDTable) ID(i uint16) (uint32, bool) {
	if int(i) >= len(t.ids) {
		return 0, false
	}
	return t.ids[i], true
}
