package storage

import (
	"fmt"
	"io"
)

// Holds exactly one piece. Sized to the piece's canonical length when first written, and zero
// filled until the engine writes the rest.
type pieceBuffer struct {
	b []byte
	// Sum of bytes written. Overlapping writes count more than once, so this is a hint only.
	written int64
}

func newPieceBuffer(length int64) *pieceBuffer {
	return &pieceBuffer{b: make([]byte, length)}
}

func (me *pieceBuffer) Len() int64 {
	return int64(len(me.b))
}

func (me *pieceBuffer) WriteAt(b []byte, off int64) int {
	if off < 0 || off+int64(len(b)) > me.Len() {
		panic(fmt.Sprintf("write overflows piece: [%v, %v) of %v", off, off+int64(len(b)), me.Len()))
	}
	n := copy(me.b[off:], b)
	me.written += int64(n)
	return n
}

// Returns io.EOF only if there's nothing at off. Reading fewer than len(b) bytes because the piece
// ends is not an error.
func (me *pieceBuffer) ReadAt(b []byte, off int64) (int, error) {
	if off >= me.Len() {
		return 0, io.EOF
	}
	return copy(b, me.b[off:]), nil
}

// The bytes of the block starting at off, truncated to the piece end.
func (me *pieceBuffer) block(off, blockSize int64) []byte {
	return me.b[off:min(off+blockSize, me.Len())]
}
