// Package generator produces identifiers for new records, such as the ids
// of timers created by a restore.
package generator

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator yields a new value on every call to Next.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator produces random UUIDv4 strings. Timer ids end up in
// overlay URLs, so they must not be guessable.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate uuid: %w", err)
	}
	return id.String(), nil
}

var _ Generator[string] = &UUIDV4Generator{}

// Sequence produces prefix-1, prefix-2, ... and is safe for concurrent use.
type Sequence struct {
	prefix string

	mu sync.Mutex
	n  int
}

func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

func (s *Sequence) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n), nil
}

var _ Generator[string] = (*Sequence)(nil)
