package session

import (
	"context"
	"time"
)

// heartbeatLoop sends a KA frame every heartbeatInterval and watches the
// reader's lastInbound timestamp; if nothing has arrived within
// heartbeatTimeout it closes conn to unblock the reader's blocking read,
// the same "close the socket to force the reconnect loop around" move
// the teacher's tnc_listen_thread makes on any read error (agwlib.go).
func (s *Session) heartbeatLoop(ctx context.Context, conn Transport) {
	interval := s.cfg.heartbeatInterval()
	timeout := s.cfg.heartbeatTimeout()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sendKeepAlive(); err != nil {
				return
			}
			last := time.Unix(0, s.lastInbound.Load())
			if time.Since(last) > timeout {
				_ = conn.Close()
				return
			}
		}
	}
}
