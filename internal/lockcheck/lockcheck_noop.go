//go:build !lockorder_debug

package lockcheck

// Enter is a no-op outside of -tags lockorder_debug builds.
func Enter(token any, order Order) {}

// Exit is a no-op outside of -tags lockorder_debug builds.
func Exit(token any) {}
