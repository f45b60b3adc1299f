package session

import (
	"encoding/json"
	"fmt"

	"github.com/cb3tech/moshcast-live/internal/domain"
)

// HostEvent is anything the relay tells a listener about the host's
// session. The closed set of variants keeps reconciliation handling
// exhaustive instead of scattered over per-event callbacks.
type HostEvent interface {
	isHostEvent()
}

// HostStarted carries a full authoritative snapshot, sent on join and
// on any hard resync point such as a track change.
type HostStarted struct {
	Snapshot domain.Snapshot
}

// HostUpdated carries a partial state push.
type HostUpdated struct {
	Update domain.Update
}

// HostEnded terminates the session.
type HostEnded struct {
	Message string
}

func (HostStarted) isHostEvent() {}
func (HostUpdated) isHostEvent() {}
func (HostEnded) isHostEvent()   {}

// decodeHostEvent maps a relay wire message to its event variant.
func decodeHostEvent(msgType string, data []byte) (HostEvent, error) {
	switch msgType {
	case domain.MsgTypeStreamState:
		var msg domain.StreamStateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("bad stream:state: %w", err)
		}
		return HostStarted{Snapshot: msg.Snapshot}, nil
	case domain.MsgTypeStreamUpdate:
		var msg domain.StreamUpdateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("bad stream:update: %w", err)
		}
		return HostUpdated{Update: msg.Update}, nil
	case domain.MsgTypeStreamEnded:
		var msg domain.StreamEndedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("bad stream:ended: %w", err)
		}
		return HostEnded{Message: msg.Message}, nil
	default:
		return nil, fmt.Errorf("not a host event: %s", msgType)
	}
}
