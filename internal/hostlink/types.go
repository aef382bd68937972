// Package hostlink talks to the bridge running inside the game client:
// an HTTP endpoint for queries and overlay frames, and a WebSocket stream
// of zone, result and input notifications.
package hostlink

import (
	"encoding/json"

	"github.com/park285/winchance-agent/internal/domain"
	"github.com/park285/winchance-agent/internal/overlay"
)

// Config is the bridge's self-description served on /config.
type Config struct {
	Version      string `json:"version"`
	Realm        string `json:"realm"`
	ClientPID    int    `json:"clientPid"`
	InputRateHz  int    `json:"inputRateHz"`
	OverlayReady bool   `json:"overlayReady"`
}

// Event frame types pushed on the WebSocket stream.
const (
	EventZoneEntered   = "zone_entered"
	EventZoneLeft      = "zone_left"
	EventBattleResults = "battle_results"
	EventInput         = "input"
)

// Event is one frame from the stream. Only the fields of its Type are set.
type Event struct {
	Type            string              `json:"type"`
	Zone            int                 `json:"zone,omitempty"`
	IsPlayerVehicle bool                `json:"isPlayerVehicle,omitempty"`
	Result          json.RawMessage     `json:"result,omitempty"`
	Input           *overlay.InputState `json:"input,omitempty"`
}

// ResultsReply answers a results-cache query. Code 0 and 1 mean the cache
// had the entry; anything else is the client's own error code.
type ResultsReply struct {
	Code   int             `json:"code"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Decode returns the parsed result, or nil when the reply carried none.
func (r ResultsReply) Decode() (*domain.RawBattleResult, error) {
	if len(r.Result) == 0 || string(r.Result) == "null" {
		return nil, nil
	}
	return domain.DecodeRawBattleResult(r.Result)
}

// OverlayRequest is the body of POST /overlay and of "overlay" WS frames.
type OverlayRequest struct {
	Type  string        `json:"type"`
	Frame overlay.Frame `json:"frame"`
}

type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)
