// Package random supplies the cryptographically strong randomness used for
// ticket numbers and draw-index sampling.
package random

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrInvalidBound is returned when a bound cannot be sampled from.
var ErrInvalidBound = errors.New("random: bound must be positive")

// Source produces uniformly distributed integers in [0, n).
type Source interface {
	Intn(n int) (int, error)
}

// SecureSource samples from a byte stream with rejection sampling, so no
// value in [0, n) is more likely than another.
type SecureSource struct {
	mu  sync.Mutex
	r   io.Reader
	buf [8]byte
}

// NewSecureSource returns a source backed by crypto/rand.
func NewSecureSource() *SecureSource {
	return &SecureSource{r: rand.Reader}
}

// NewSource returns a source reading from r. Use it with a fixed byte stream
// to reproduce a sequence of draws; production code uses NewSecureSource.
func NewSource(r io.Reader) *SecureSource {
	return &SecureSource{r: r}
}

// Intn returns a uniform integer in [0, n).
//
// A raw 64-bit value v is rejected while v < 2^64 mod n. The remaining range
// is an exact multiple of n, so v % n carries no modulo bias.
func (s *SecureSource) Intn(n int) (int, error) {
	if n <= 0 {
		return 0, ErrInvalidBound
	}
	if n == 1 {
		return 0, nil
	}

	bound := uint64(n)
	threshold := -bound % bound

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if _, err := io.ReadFull(s.r, s.buf[:]); err != nil {
			return 0, fmt.Errorf("random: read entropy: %w", err)
		}
		v := binary.BigEndian.Uint64(s.buf[:])
		if v >= threshold {
			return int(v % bound), nil
		}
	}
}

// MaxNumberWidth is the widest ticket number whose space still fits an int.
const MaxNumberWidth = 18

// DefaultNumberWidth gives ten-digit ticket numbers.
const DefaultNumberWidth = 10

// TicketNumbers generates fixed-width, zero-padded decimal ticket numbers.
type TicketNumbers struct {
	src   Source
	width int
	space int
}

// NewTicketNumbers returns a generator of width-digit numbers drawn from src.
func NewTicketNumbers(src Source, width int) (*TicketNumbers, error) {
	if width < 1 || width > MaxNumberWidth {
		return nil, fmt.Errorf("random: ticket number width %d out of range [1,%d]", width, MaxNumberWidth)
	}
	space := 1
	for i := 0; i < width; i++ {
		space *= 10
	}
	return &TicketNumbers{src: src, width: width, space: space}, nil
}

// Next returns a new number. Uniqueness within a lottery is enforced by the
// ledger, not here.
func (g *TicketNumbers) Next() (string, error) {
	v, err := g.src.Intn(g.space)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", g.width, v), nil
}

// Width returns the number of digits in every generated number.
func (g *TicketNumbers) Width() int { return g.width }
