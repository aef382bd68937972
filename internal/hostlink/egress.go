package hostlink

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/overlay"
)

// Egress abstracts overlay frame sending over HTTP or WebSocket.
type Egress interface {
	SendFrame(ctx context.Context, f overlay.Frame) error
}

type transportMode string

const (
	transportHTTP transportMode = "http"
	transportWS   transportMode = "ws"
	transportAuto transportMode = "auto"
)

// NewEgress creates an Egress based on mode. When mode is auto, WS is preferred when connected;
// on WS failure, it falls back to HTTP once.
func NewEgress(mode string, c *Client, ws WSClient, logger *zap.Logger) Egress {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch transportMode(mode) {
	case transportWS:
		return &wsEgress{ws: ws}
	case transportAuto:
		return &autoEgress{ws: &wsEgress{ws: ws}, http: &httpEgress{c: c}, logger: logger}
	default:
		return &httpEgress{c: c}
	}
}

type httpEgress struct{ c *Client }

func (h *httpEgress) SendFrame(ctx context.Context, f overlay.Frame) error {
	if h == nil || h.c == nil {
		return errors.New("http egress not available")
	}
	return h.c.DrawOverlay(ctx, f)
}

type wsEgress struct{ ws WSClient }

func (w *wsEgress) SendFrame(ctx context.Context, f overlay.Frame) error {
	if w == nil || w.ws == nil {
		return errors.New("ws egress not available")
	}
	return w.ws.WriteJSON(ctx, OverlayRequest{Type: "overlay", Frame: f})
}

func (w *wsEgress) ready() bool { return w != nil && w.ws != nil && w.ws.Connected() }

type autoEgress struct {
	ws     *wsEgress
	http   *httpEgress
	logger *zap.Logger
}

func (a *autoEgress) SendFrame(ctx context.Context, f overlay.Frame) error {
	if a.ws.ready() {
		err := a.ws.SendFrame(ctx, f)
		if err == nil {
			return nil
		}
		a.logger.Warn("egress_fallback", zap.Bool("visible", f.Visible), zap.Error(err))
	}
	return a.http.SendFrame(ctx, f)
}
