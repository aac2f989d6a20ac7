// Package rng provides the uniform random sources fed to the outcome resolver.
//
// A Stream is not safe for concurrent use. Give every goroutine (one simulated game,
// one worker) its own stream; streams derived from the same seed with different
// stream ids are independent and individually reproducible.
package rng

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// Source produces uniform samples in [0,1)
type Source interface {
	Float64() float64
}

// Stream is a seeded PCG generator
type Stream struct {
	seed   uint64
	stream uint64
	r      *rand.Rand
}

// NewSeeded returns stream 0 for seed
func NewSeeded(seed uint64) *Stream {
	return NewStream(seed, 0)
}

// NewStream returns the generator for (seed, stream)
func NewStream(seed, stream uint64) *Stream {
	return &Stream{
		seed:   seed,
		stream: stream,
		r:      rand.New(rand.NewPCG(seed, stream)),
	}
}

// Float64 returns the next sample in [0,1)
func (s *Stream) Float64() float64 { return s.r.Float64() }

// Seed returns the seed the stream was built from
func (s *Stream) Seed() uint64 { return s.seed }

// ID returns the stream id
func (s *Stream) ID() uint64 { return s.stream }

// NewSeed draws a seed from crypto/rand
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// Sequence replays a fixed list of samples, wrapping around at the end.
// It exists for tests and for callers that already hold the sample they want used.
type Sequence struct {
	samples []float64
	next    int
	calls   int
}

// NewSequence returns a Sequence over samples. It panics on an empty list.
func NewSequence(samples ...float64) *Sequence {
	if len(samples) == 0 {
		panic("rng: NewSequence needs at least one sample")
	}
	return &Sequence{samples: append([]float64(nil), samples...)}
}

// Float64 returns the next sample in the sequence
func (s *Sequence) Float64() float64 {
	v := s.samples[s.next]
	s.next = (s.next + 1) % len(s.samples)
	s.calls++
	return v
}

// Calls reports how many samples have been consumed
func (s *Sequence) Calls() int { return s.calls }
