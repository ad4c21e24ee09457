package typedRoaring

import (
	"github.com/RoaringBitmap/roaring"
)

type BitConstraint interface {
	~int | ~uint32
}

// A roaring.Bitmap over a typed index, such as piece indices or storage slots.
type Bitmap[T BitConstraint] struct {
	roaring.Bitmap
}

func (me *Bitmap[T]) Contains(x T) bool {
	return me.Bitmap.Contains(uint32(x))
}

func (me *Bitmap[T]) Add(x T) {
	me.Bitmap.Add(uint32(x))
}

func (me *Bitmap[T]) CheckedAdd(x T) bool {
	return me.Bitmap.CheckedAdd(uint32(x))
}

func (me *Bitmap[T]) CheckedRemove(x T) bool {
	return me.Bitmap.CheckedRemove(uint32(x))
}

// Returns the smallest member and removes it. ok is false if the bitmap is empty.
func (me *Bitmap[T]) PopMinimum() (x T, ok bool) {
	if me.Bitmap.IsEmpty() {
		return
	}
	m := me.Bitmap.Minimum()
	me.Bitmap.Remove(m)
	return T(m), true
}

func (me *Bitmap[T]) Len() int {
	return int(me.Bitmap.GetCardinality())
}
