// Package id generates identifiers for orders, ledger entries and requests.
package id

import "github.com/google/uuid"

type UUIDGenerator struct{}

func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

// NewID returns a random (v4) UUID string.
func (UUIDGenerator) NewID() string { return uuid.NewString() }

// Sequence hands out prefixed ids from a fixed list, then falls back to UUIDs.
// Tests use it to make ids predictable.
type Sequence struct {
	ids  chan string
	next UUIDGenerator
}

func NewSequence(ids ...string) *Sequence {
	ch := make(chan string, len(ids))
	for _, v := range ids {
		ch <- v
	}
	return &Sequence{ids: ch}
}

func (s *Sequence) NewID() string {
	select {
	case v := <-s.ids:
		return v
	default:
		return s.next.NewID()
	}
}
