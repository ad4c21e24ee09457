package storage

import (
	g "github.com/anacrolix/generics"

	typedRoaring "github.com/anacrolix/piecesync/internal/typed-roaring"
)

// Maps Slots to values. Freed slots are handed out again lowest first, so repeated add/remove
// cycles don't grow the table.
type slotTable[T any] struct {
	entries []g.Option[T]
	free    typedRoaring.Bitmap[Slot]
}

func (me *slotTable[T]) Insert(v T) Slot {
	if s, ok := me.free.PopMinimum(); ok {
		me.entries[s] = g.Some(v)
		return s
	}
	me.entries = append(me.entries, g.Some(v))
	return Slot(len(me.entries) - 1)
}

func (me *slotTable[T]) Get(s Slot) (v T, ok bool) {
	if s < 0 || int(s) >= len(me.entries) {
		return
	}
	return me.entries[s].AsTuple()
}

func (me *slotTable[T]) Remove(s Slot) (v T, ok bool) {
	v, ok = me.Get(s)
	if !ok {
		return
	}
	me.entries[s] = g.None[T]()
	me.free.Add(s)
	return
}

// Number of occupied slots.
func (me *slotTable[T]) Len() int {
	return len(me.entries) - me.free.Len()
}
