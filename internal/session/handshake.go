package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/k0ucp/ucpbridge/internal/frame"
)

// helloMessage is the UM hello frame's body (§6 "client identity
// JSON-like").
type helloMessage struct {
	Identifier string `json:"identifier"`
}

// subscribeRequest is the JM Subscribe frame's body (§6, field names as
// spec'd verbatim).
type subscribeRequest struct {
	ID                 string            `json:"id"`
	ClientName         string            `json:"clientName"`
	ClientInternalName string            `json:"clientInternalName"`
	ClientType         string            `json:"clientType"`
	ClientOptions      map[string]string `json:"clientOptions,omitempty"`
	ClientEncoding     string            `json:"clientEncoding"`
}

// handshake sends the hello and Subscribe frames and waits for the
// server's JM reply, or for ctx to expire (§4.3 "Await the matching
// reply").
func (s *Session) handshake(ctx context.Context, conn Transport) error {
	hello := helloMessage{Identifier: s.cfg.ClientIdentity}
	helloJSON, err := json.Marshal(hello)
	if err != nil {
		return fmt.Errorf("%w: encode hello: %v", ErrHandshakeFailed, err) //nolint:errorlint
	}
	if _, err := conn.Write(frame.Encode(frame.TypeJSONUM, helloJSON)); err != nil {
		return fmt.Errorf("%w: send hello: %v", ErrConnectFailed, err) //nolint:errorlint
	}

	sub := subscribeRequest{
		ID:                 "Subscribe",
		ClientName:         s.cfg.ClientName,
		ClientInternalName: s.cfg.ClientInternalName,
		ClientType:         s.cfg.ClientType,
		ClientOptions:      s.cfg.ClientOptions,
		ClientEncoding:     s.cfg.ClientEncoding,
	}
	subJSON, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("%w: encode subscribe: %v", ErrHandshakeFailed, err) //nolint:errorlint
	}
	if _, err := conn.Write(frame.Encode(frame.TypeJSONJM, subJSON)); err != nil {
		return fmt.Errorf("%w: send subscribe: %v", ErrConnectFailed, err) //nolint:errorlint
	}

	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		for {
			fr, err := readFrame(conn)
			if err != nil {
				done <- result{err: fmt.Errorf("%w: %v", ErrHandshakeFailed, err)} //nolint:errorlint
				return
			}
			if fr.Type == frame.TypeJSONJM {
				done <- result{}
				return
			}
			// Anything else arriving before the subscribe reply is
			// discarded; the reader loop takes over once Connected.
		}
	}()

	select {
	case <-ctx.Done():
		_ = conn.Close()
		<-done
		return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err()) //nolint:errorlint
	case res := <-done:
		return res.err
	}
}
