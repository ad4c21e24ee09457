package metainfo

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// The parts of a single-file BEP 3 info dictionary that the piece layer needs: how long the
// content is, how it is cut into pieces, and what each piece should hash to.
type Info struct {
	Name        string
	PieceLength int64
	Length      int64
	// Concatenated SHA-1 piece hashes, HashSize bytes per piece. May be empty if the hashes
	// aren't known, in which case NumPieces is derived from the lengths.
	Pieces []byte
}

func (info *Info) Validate() error {
	switch {
	case info.PieceLength <= 0:
		return fmt.Errorf("piece length must be positive, got %v", info.PieceLength)
	case info.Length <= 0:
		return errors.New("content length must be positive")
	case len(info.Pieces)%HashSize != 0:
		return fmt.Errorf("pieces field has bad length %v", len(info.Pieces))
	case len(info.Pieces) != 0 && len(info.Pieces)/HashSize != info.numPiecesFromLength():
		return fmt.Errorf(
			"have %v piece hashes but lengths imply %v pieces",
			len(info.Pieces)/HashSize, info.numPiecesFromLength())
	}
	return nil
}

func (info *Info) numPiecesFromLength() int {
	return int((info.Length + info.PieceLength - 1) / info.PieceLength)
}

func (info *Info) NumPieces() int {
	if len(info.Pieces) != 0 {
		return len(info.Pieces) / HashSize
	}
	return info.numPiecesFromLength()
}

func (info *Info) TotalLength() int64 {
	return info.Length
}

func (info *Info) Piece(index int) Piece {
	return Piece{info, index}
}

// Returns the index of the piece containing the content offset.
func (info *Info) PieceIndexForOffset(off int64) int {
	return int(off / info.PieceLength)
}

// Reads the content from r and fills in Length and Pieces. PieceLength must already be set.
func (info *Info) GeneratePieces(r io.Reader) (err error) {
	if info.PieceLength <= 0 {
		return errors.New("piece length must be positive")
	}
	info.Pieces = info.Pieces[:0]
	info.Length = 0
	h := sha1.New()
	for {
		h.Reset()
		var n int64
		n, err = io.CopyN(h, r, info.PieceLength)
		info.Length += n
		if n != 0 {
			info.Pieces = h.Sum(info.Pieces)
		}
		if err == io.EOF {
			err = nil
			break
		}
		if err != nil {
			return
		}
	}
	if info.Length == 0 {
		err = errors.New("no content")
	}
	return
}

// The bencoding of the info dictionary. Keys are emitted in sorted order so the result hashes to
// the same infohash any other BEP 3 client would compute for this single-file torrent.
func (info *Info) MarshalBencode() []byte {
	var buf bytes.Buffer
	writeString := func(s string) {
		buf.WriteString(strconv.Itoa(len(s)))
		buf.WriteByte(':')
		buf.WriteString(s)
	}
	writeInt := func(i int64) {
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(i, 10))
		buf.WriteByte('e')
	}
	buf.WriteByte('d')
	writeString("length")
	writeInt(info.Length)
	writeString("name")
	writeString(info.Name)
	writeString("piece length")
	writeInt(info.PieceLength)
	writeString("pieces")
	writeString(string(info.Pieces))
	buf.WriteByte('e')
	return buf.Bytes()
}

func (info *Info) InfoHash() Hash {
	return HashBytes(info.MarshalBencode())
}

func (info *Info) Magnet() Magnet {
	return Magnet{
		InfoHash:    info.InfoHash(),
		DisplayName: info.Name,
	}
}
