package hostlink

import "context"

type EventCallback func(ev *Event)

type StateCallback func(state WebSocketState)

// WSClient is the event stream seen by the router and the egress.
type WSClient interface {
	Connect(ctx context.Context) error
	OnEvent(cb EventCallback) int
	RemoveEventCallback(id int)
	OnStateChange(cb StateCallback) int
	RemoveStateCallback(id int)
	Connected() bool
	WriteJSON(ctx context.Context, v any) error
	Close(ctx context.Context) error
}
