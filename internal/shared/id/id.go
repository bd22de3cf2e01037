// Package id generates ULIDs for the handful of runtime entities that need
// one: bridge sessions, staging directories and server request ids.
//
// ULIDs are lexicographically sortable, so staging directories and log
// lines order by creation time without an extra timestamp.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies one bridge connection for a running bundle
type SessionID string

// StagingID names a download staging directory
type StagingID string

// RequestID identifies an inbound API request
type RequestID string

const (
	SessionPrefix = "sess"
	StagingPrefix = "stage"
	RequestPrefix = "req"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator using crypto/rand with monotonic entropy
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0), time.Now)
}

// NewGeneratorWithEntropy creates a generator with a custom entropy and
// time source. Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{entropy: entropy, now: now}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// GenerateWithPrefix creates "prefix_ULID"
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a bridge session id
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewStagingID generates a staging directory name
func NewStagingID() StagingID {
	return StagingID(Default().GenerateWithPrefix(StagingPrefix))
}

// NewRequestID generates a request id
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id SessionID) String() string { return string(id) }
func (id StagingID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }

// Split separates a prefixed id into prefix and ULID parts
func Split(s string) (prefix string, u ulid.ULID, err error) {
	i := strings.LastIndexByte(s, '_')
	if i < 0 {
		u, err = ulid.Parse(s)
		return "", u, err
	}
	u, err = ulid.Parse(s[i+1:])
	return s[:i], u, err
}

// HasPrefix reports whether s was generated with prefix and carries a valid ULID
func HasPrefix(s, prefix string) bool {
	p, _, err := Split(s)
	return err == nil && p == prefix
}

// Timestamp extracts the creation time of a (possibly prefixed) id
func Timestamp(s string) (time.Time, error) {
	_, u, err := Split(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
