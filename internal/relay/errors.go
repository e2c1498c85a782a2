package relay

import (
	"fmt"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
)

// ResolutionError reports a chat identifier that cannot be mapped to a handle.
type ResolutionError struct {
	Identifier string
	Reason     string
	Err        error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("resolve %q", e.Identifier)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// DeliveryError wraps a failed outbound transport call.
// It never escapes the engine; it is logged and recorded on the Outcome.
type DeliveryError struct {
	Op          string // "send_text", "send_media", "send_batch", "forward_message", "forward_group"
	Source      bus.ChatHandle
	Destination bus.ChatHandle
	Ref         string // message or group reference
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s %s -> %d: %v", e.Op, e.Ref, int64(e.Destination), e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// TransportError reports that the transport session ended on its own.
// The relay does not reconnect.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }
