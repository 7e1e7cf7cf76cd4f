// Package zobrist hashes chess positions into 64-bit keys for the
// transposition table, the repetition history, and the opening book index.
// https://en.wikipedia.org/wiki/Zobrist_hashing
package zobrist

import (
	"fmt"

	"lukechampine.com/frand"

	"github.com/domino14/ajedrez/chess"
)

const bignum = 1<<63 - 2

// Hashable is the slice of position state that contributes to the hash.
// The en-passant target must only be reported when a capture onto it is
// actually possible; two positions that differ only in an unusable
// en-passant square are the same position for repetition purposes.
type Hashable interface {
	PieceAt(sq chess.Square) chess.Piece
	SideToMove() chess.Color
	CastlingRights() uint8
	EnPassantTarget() (chess.Square, bool)
}

// Fixed seed for the key tables. Hashes must be stable across runs and
// processes because the opening book persists them.
var hashSeed = [32]byte{
	0x12, 0x34, 0x56, 0x78, 0x90, 0xab, 0xcd, 0xef,
	0xa1, 0xe4, 0xd5, 0x2b, 0x0c, 0x77, 0x3e, 0x91,
	0x58, 0x19, 0xc6, 0x40, 0xfa, 0x02, 0x6d, 0xb3,
	0x84, 0xee, 0x31, 0x7c, 0x09, 0x5a, 0xd2, 0x68,
}

// Hasher holds the key tables. Immutable after New and safe for concurrent
// use; the whole program shares one instance.
type Hasher struct {
	pieces      [13][64]uint64
	castling    [16]uint64
	epFile      [8]uint64
	blackToMove uint64
}

func New() *Hasher {
	rng := frand.NewCustom(hashSeed[:], 1024, 12)
	h := &Hasher{}
	for p := chess.WPawn; p <= chess.BKing; p++ {
		for sq := 0; sq < 64; sq++ {
			h.pieces[p][sq] = rng.Uint64n(bignum) + 1
		}
	}
	for i := range h.castling {
		h.castling[i] = rng.Uint64n(bignum) + 1
	}
	for i := range h.epFile {
		h.epFile[i] = rng.Uint64n(bignum) + 1
	}
	h.blackToMove = rng.Uint64n(bignum) + 1
	return h
}

// Hash computes the full hash of a position from scratch.
func (h *Hasher) Hash(p Hashable) uint64 {
	var key uint64
	for sq := chess.Square(0); sq < 64; sq++ {
		if pc := p.PieceAt(sq); pc != chess.Empty {
			key ^= h.pieces[pc][sq]
		}
	}
	key ^= h.castling[p.CastlingRights()&0xF]
	if ep, ok := p.EnPassantTarget(); ok {
		key ^= h.epFile[ep.File()]
	}
	if p.SideToMove() == chess.Black {
		key ^= h.blackToMove
	}
	return key
}

// Format renders a hash the way log lines and the book index print them.
func Format(key uint64) string {
	return fmt.Sprintf("%016x", key)
}
