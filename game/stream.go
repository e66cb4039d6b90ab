package game

import (
	"crypto/sha512"
	"encoding/binary"
	"fmt"
)

// Stream is a deterministic, unbounded byte source seeded from one round.
// The first block is sha512 of the canonical input; every further block is
// sha512(previous block || big-endian uint64 counter).
type Stream struct {
	block   [sha512.Size]byte
	pos     int
	counter uint64
}

// DeriveStream builds the stream for a round. Identical inputs always yield
// byte-identical streams.
func DeriveStream(serverSeed, clientSeed string, nonce int64, mineCount int) *Stream {
	input := fmt.Sprintf("%s:%s:%d:%d", serverSeed, clientSeed, nonce, mineCount)
	return &Stream{block: sha512.Sum512([]byte(input))}
}

func (s *Stream) extend() {
	var buf [sha512.Size + 8]byte
	s.counter++
	copy(buf[:], s.block[:])
	binary.BigEndian.PutUint64(buf[sha512.Size:], s.counter)
	s.block = sha512.Sum512(buf[:])
	s.pos = 0
}

// Read fills p completely; it never returns an error
func (s *Stream) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if s.pos == len(s.block) {
			s.extend()
		}
		c := copy(p[n:], s.block[s.pos:])
		s.pos += c
		n += c
	}
	return n, nil
}

func (s *Stream) Uint32() uint32 {
	var b [4]byte
	s.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// Float64 returns a uniform draw in [0, 1) from the top 53 bits of 8 bytes
func (s *Stream) Float64() float64 {
	var b [8]byte
	s.Read(b[:])
	u := binary.BigEndian.Uint64(b[:]) >> 11
	return float64(u) / (1 << 53)
}
