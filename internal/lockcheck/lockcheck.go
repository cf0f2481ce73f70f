// Package lockcheck asserts the engine's documented lock order — log store
// first, then container — under a build tag so the check costs nothing in
// production builds. Grounded on the original source's debug-only structural
// assertions (rle_tree's leaf check()/is_deleted()), translated to Go's
// build-tag idiom rather than a #[cfg(test)] attribute.
package lockcheck

// Order enumerates the two lock tiers the engine takes, in the order they
// must be acquired.
type Order int

const (
	// StoreLock is the log store's reader-writer lock. Must be acquired
	// before any ContainerLock.
	StoreLock Order = iota
	// ContainerLock is a single container's mutex.
	ContainerLock
)

// ambientToken is the shared token EnterAmbient/ExitAmbient record under.
// The log store and its containers don't share a call-scoped value to
// pass as Enter's token (Container's public methods take no such
// parameter, matching spec.md's fixed signatures), so the ambient helpers
// approximate "same logical call chain" with one process-wide token. That
// is sufficient to catch the violation this package exists for — a
// container lock acquired, then a later attempt to acquire the store
// lock from the same chain — without requiring every call site to thread
// a token through.
var ambientToken = new(int)

// EnterAmbient and ExitAmbient are Enter/Exit against the shared ambient
// token.
func EnterAmbient(order Order) { Enter(ambientToken, order) }
func ExitAmbient()              { Exit(ambientToken) }
