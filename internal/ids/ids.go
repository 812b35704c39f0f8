// Package ids generates prefixed, lexically sortable identifiers.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Well-known prefixes.
const (
	Session   = "sess_"
	Message   = "msg_"
	Iteration = "iter_"
	Agent     = "agt_"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns prefix followed by a ULID. IDs generated by one process are
// strictly increasing, so sorting them as strings yields creation order.
func New(prefix string) string {
	mu.Lock()
	defer mu.Unlock()
	return prefix + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
