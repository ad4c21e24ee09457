package storage

import (
	"crypto/sha1"
	"crypto/sha256"

	g "github.com/anacrolix/generics"
)

func hashPieceBuffer(pb *pieceBuffer, blockSize int64, blocks bool) (ret PieceHashes) {
	ret.Piece = sha1.Sum(pb.b)
	if !blocks {
		return
	}
	hashes := make([]BlockHash, 0, (pb.Len()+blockSize-1)/blockSize)
	for off := int64(0); off < pb.Len(); off += blockSize {
		hashes = append(hashes, hashBlock(pb.block(off, blockSize)))
	}
	ret.Blocks = g.Some(hashes)
	return
}

func hashBlock(b []byte) BlockHash {
	return sha256.Sum256(b)
}
