//go:build lockorder_debug

package lockcheck

import "sync"

// held tracks the highest lock tier currently held by the calling
// goroutine. It is deliberately approximate (keyed by a goroutine-local
// token passed in by the caller, not by runtime goroutine ID, since Go has
// no supported way to read that) — good enough to catch the mistake this
// exists for: acquiring a container lock first and the store lock second.
var (
	mu   sync.Mutex
	held = make(map[any]Order)
)

// Enter records that token is about to acquire a lock of the given order,
// panicking if it already holds a higher order (i.e. is trying to
// acquire StoreLock while already holding ContainerLock).
func Enter(token any, order Order) {
	mu.Lock()
	defer mu.Unlock()
	if prev, ok := held[token]; ok && order < prev {
		panic("lockcheck: out-of-order lock acquisition: log store must be locked before any container")
	}
	held[token] = order
}

// Exit clears the recorded order for token once all locks it held are
// released.
func Exit(token any) {
	mu.Lock()
	defer mu.Unlock()
	delete(held, token)
}
