package metainfo

import (
	"fmt"

	g "github.com/anacrolix/generics"
)

type PieceIndex = int

type Piece struct {
	Info *Info
	i    PieceIndex
}

func (p Piece) String() string {
	return fmt.Sprintf("metainfo.Piece(Info.Name=%q, i=%v)", p.Info.Name, p.i)
}

// The canonical length of the piece. Every piece is PieceLength long except the last, which holds
// whatever remains of the content.
func (p Piece) Length() int64 {
	i := p.i
	lastPiece := p.Info.NumPieces() - 1
	switch {
	case 0 <= i && i < lastPiece:
		return p.Info.PieceLength
	case lastPiece >= 0 && i == lastPiece:
		length := p.Info.Length - int64(i)*p.Info.PieceLength
		if length <= 0 || length > p.Info.PieceLength {
			panic(length)
		}
		return length
	default:
		panic(i)
	}
}

func (p Piece) Offset() int64 {
	return int64(p.i) * p.Info.PieceLength
}

func (p Piece) Index() int {
	return p.i
}

func (p Piece) Hash() (ret g.Option[Hash]) {
	if len(p.Info.Pieces) < (p.i+1)*HashSize {
		return
	}
	copy(ret.Value[:], p.Info.Pieces[p.i*HashSize:(p.i+1)*HashSize])
	ret.Ok = true
	return
}
