// Package idx hands out ULID identifiers for authorisations and request ids.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ID string

// Zero is the empty ID, only useful as a placeholder.
const Zero ID = ""

// ErrInvalid reports a malformed ULID string.
var ErrInvalid = errors.New("idx: invalid ulid")

// source serialises access to a monotonic entropy reader so ids minted in
// the same millisecond still sort in creation order.
var source = sync.OnceValue(func() *monotonic {
	return &monotonic{entropy: ulid.Monotonic(rand.Reader, 0)}
})

type monotonic struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (m *monotonic) at(t time.Time) ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(t), m.entropy).String())
}

// New returns a new ID stamped with the current UTC time.
func New() ID {
	return source().at(time.Now().UTC())
}

// NewAt returns an ID stamped with t, so an id can share its record's clock.
func NewAt(t time.Time) ID {
	return source().at(t.UTC())
}

// Parse validates s as a ULID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}
	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == Zero }

func (id ID) String() string { return string(id) }
