// Package stream accepts live actual-outcome observations over a
// websocket and feeds them through the guardrail loop. Each accepted
// frame is answered with the processing result so dashboards can react
// without polling.
package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/retinalabs/retina/internal/guardrail"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second

	maxFrameBytes = 16 * 1024
)

// Processor is the guardrail engine surface the stream needs.
type Processor interface {
	ProcessActualOutcome(ctx context.Context, o guardrail.Outcome) (*guardrail.ProcessResult, error)
}

// Refresher is notified after each processed outcome so downstream
// recomputes can be debounced per decision.
type Refresher interface {
	Trigger(decisionID string)
}

// Ack is the per-frame response.
type Ack struct {
	OK      bool                     `json:"ok"`
	Matched bool                     `json:"matched"`
	Error   string                   `json:"error,omitempty"`
	Result  *guardrail.ProcessResult `json:"result,omitempty"`
}

// Handler serves the outcome websocket.
type Handler struct {
	engine    Processor
	refresher Refresher
	upgrader  websocket.Upgrader
}

// NewHandler creates the websocket handler. refresher may be nil.
func NewHandler(engine Processor, refresher Refresher) *Handler {
	return &Handler{
		engine:    engine,
		refresher: refresher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs the frame loop until the
// client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("outcome stream upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.pingLoop(conn, done)
	defer close(done)

	for {
		var outcome guardrail.Outcome
		if err := conn.ReadJSON(&outcome); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("outcome stream closed unexpectedly")
			}
			return
		}

		ack := h.process(r.Context(), outcome)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ack); err != nil {
			log.Warn().Err(err).Msg("outcome stream write failed")
			return
		}
	}
}

func (h *Handler) process(ctx context.Context, o guardrail.Outcome) Ack {
	res, err := h.engine.ProcessActualOutcome(ctx, o)
	if err != nil {
		log.Error().Err(err).Str("decision_id", o.DecisionID).Msg("outcome processing failed")
		return Ack{OK: false, Error: err.Error()}
	}
	if h.refresher != nil && o.DecisionID != "" {
		h.refresher.Trigger(o.DecisionID)
	}
	return Ack{OK: true, Matched: res != nil, Result: res}
}

func (h *Handler) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
