package event

import "sync"

// Handler receives one container's Diff. Called on the Hierarchy's own
// dispatch goroutine, never on the caller's thread, so a handler that
// itself calls back into the engine (e.g. to read the container it was
// just notified about) never reenters the lock that produced the event.
type Handler func(containerID string, diff Diff)

// Callback is Handler's external-facing name, matching how Engine's
// Subscribe is named at the public API boundary.
type Callback = Handler

// SubscriptionID identifies a registered Subscribe call for Unsubscribe.
type SubscriptionID = int

type subscription struct {
	id      int
	handler Handler
}

// Hierarchy is the engine-wide observer registry: containers call Notify
// under their own lock, and delivery is deferred onto a dedicated
// goroutine so handlers never run reentrantly against that lock.
type Hierarchy struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]subscription // containerID -> subscribers; "" = all containers

	queue chan queuedNotify
	done  chan struct{}
	wg    sync.WaitGroup
}

type queuedNotify struct {
	containerID string
	diff        Diff
}

// NewHierarchy starts the dispatch goroutine and returns a ready Hierarchy.
// Close must be called to stop it.
func NewHierarchy() *Hierarchy {
	h := &Hierarchy{
		subs:  make(map[string][]subscription),
		queue: make(chan queuedNotify, 256),
		done:  make(chan struct{}),
	}
	h.wg.Add(1)
	go h.dispatchLoop()
	return h
}

// Subscribe registers handler for containerID's events, or every
// container's events if containerID is empty. Returns an ID usable with
// Unsubscribe.
func (h *Hierarchy) Subscribe(containerID string, handler Handler) SubscriptionID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.subs[containerID] = append(h.subs[containerID], subscription{id: id, handler: handler})
	return id
}

// Unsubscribe removes the subscription with the given ID, if any.
func (h *Hierarchy) Unsubscribe(id SubscriptionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, subs := range h.subs {
		for i, s := range subs {
			if s.id == id {
				h.subs[key] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Notify enqueues diff for asynchronous delivery to containerID's
// subscribers and the wildcard subscribers. Never blocks the caller on a
// handler; it only blocks briefly if the dispatch queue itself is full,
// which bounds memory rather than serializing with delivery.
func (h *Hierarchy) Notify(containerID string, diff Diff) {
	select {
	case h.queue <- queuedNotify{containerID: containerID, diff: diff}:
	case <-h.done:
	}
}

// Close stops the dispatch goroutine once the queue drains. Safe to call
// once; further Notify calls after Close are dropped.
func (h *Hierarchy) Close() {
	close(h.done)
	h.wg.Wait()
}

func (h *Hierarchy) dispatchLoop() {
	defer h.wg.Done()
	for {
		select {
		case n := <-h.queue:
			h.deliver(n)
		case <-h.done:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case n := <-h.queue:
					h.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (h *Hierarchy) deliver(n queuedNotify) {
	h.mu.Lock()
	handlers := append([]subscription(nil), h.subs[n.containerID]...)
	handlers = append(handlers, h.subs[""]...)
	h.mu.Unlock()

	for _, s := range handlers {
		s.handler(n.containerID, n.diff)
	}
}
