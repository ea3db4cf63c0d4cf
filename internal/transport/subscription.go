package transport

import "sync"

const subscriptionBuffer = 256

// Subscription is a registered interest in one destination. The Frames
// channel stays valid across reconnects; nothing is delivered while the
// connection is down and delivery resumes after the destination is
// re-issued on the next successful handshake.
type Subscription struct {
	destination string
	m           *Manager
	frames      chan Frame
	done        chan struct{}
	closeOnce   sync.Once
}

// Destination returns the subscribed destination.
func (s *Subscription) Destination() string { return s.destination }

// Frames returns the inbound frame channel for this destination. Frames
// arrive in transport order.
func (s *Subscription) Frames() <-chan Frame { return s.frames }

// Done is closed when the subscription is released.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close releases the subscription. No frames are delivered afterwards.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.m.unsubscribe(s)
		close(s.done)
	})
	return nil
}

// markClosed tears the subscription down without notifying the backend,
// used when the whole manager shuts down.
func (s *Subscription) markClosed() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Subscription) deliver(f Frame) {
	select {
	case s.frames <- f:
	case <-s.done:
	}
}
