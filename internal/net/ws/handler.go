// Package ws upgrades viewer connections and runs their read loops. Decoded
// messages flow through the intake layer onto the simulation queue; acks,
// rejects, and heartbeat replies go straight back on the same connection.
package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pinball-gacha/server/internal/hub"
	"pinball-gacha/server/internal/net/intake"
	"pinball-gacha/server/internal/net/proto"
	"pinball-gacha/server/internal/sim"
	"pinball-gacha/server/internal/telemetry"
)

// HandlerConfig carries the handler collaborators.
type HandlerConfig struct {
	Logger  telemetry.Logger
	Metrics *telemetry.Counters
}

// Handler upgrades HTTP requests into hub subscriptions.
type Handler struct {
	hub      *hub.Hub
	logger   telemetry.Logger
	metrics  *telemetry.Counters
	upgrader websocket.Upgrader
}

// NewHandler builds the websocket entry point around the hub.
func NewHandler(h *hub.Hub, cfg HandlerConfig) *Handler {
	return &Handler{
		hub:     h,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handle upgrades the request, subscribes the viewer (the hub writes the
// hello before any broadcast can reach the socket), and serves the read loop
// until the connection drops.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("[ws] upgrade failed: %v", err)
		return
	}

	sub, err := h.hub.Subscribe(conn)
	if err != nil {
		h.logf("[ws] subscribe failed: %v", err)
		conn.Close()
		return
	}

	h.serve(conn, sub)
}

// messageReader is the read half of the websocket connection.
type messageReader interface {
	ReadMessage() (int, []byte, error)
}

func (h *Handler) serve(conn messageReader, sub *hub.Subscriber) {
	viewerID := sub.ID()
	defer h.hub.Disconnect(viewerID)

	ctx := intake.CommandContext{
		Queue: h.hub,
		Tick:  h.hub.Tick,
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logf("[ws] discarding malformed message from %s: %v", viewerID, err)
			h.metrics.Add("ws.malformed.total", 1)
			continue
		}

		if msg.Ack != nil {
			sub.RecordAck(*msg.Ack)
		}

		if msg.Type == proto.TypeHeartbeat {
			now := time.Now()
			rtt := sub.RecordHeartbeat(now, msg.SentAt)
			data, err := proto.EncodeHeartbeat(now.UnixMilli(), msg.SentAt, rtt.Milliseconds())
			if err != nil {
				h.logf("[ws] encode heartbeat: %v", err)
				continue
			}
			if err := sub.Send(data); err != nil {
				return
			}
			h.metrics.Add("ws.heartbeats.total", 1)
			continue
		}

		seq := msg.CommandSeq()
		if seq > 0 {
			if last := sub.LastCommandSeq(); last > 0 && seq <= last {
				if !h.sendAck(sub, seq, 0) {
					return
				}
				continue
			}
		}

		cmd, ok, reason := intake.StageCommand(ctx, viewerID, msg)
		if ok {
			h.metrics.Add("ws.commands.total", 1)
			if seq > 0 {
				if !h.sendAck(sub, seq, cmd.OriginTick) {
					return
				}
				sub.StoreLastCommandSeq(seq)
			}
			continue
		}

		h.metrics.Add("ws.rejects.total", 1)
		if reason == intake.RejectUnknownType {
			h.logf("[ws] unknown message type %q from %s", msg.Type, viewerID)
		}
		if seq > 0 {
			retry := reason == sim.CommandRejectQueueLimit || reason == sim.CommandRejectQueueFull
			if !h.sendReject(sub, seq, reason, retry) {
				return
			}
		}
	}
}

// sendAck reports a staged or duplicate command back to the viewer. A false
// return means the connection is dead.
func (h *Handler) sendAck(sub *hub.Subscriber, seq, tick uint64) bool {
	data, err := proto.EncodeAck(seq, tick)
	if err != nil {
		h.logf("[ws] encode ack: %v", err)
		return true
	}
	return sub.Send(data) == nil
}

func (h *Handler) sendReject(sub *hub.Subscriber, seq uint64, reason string, retry bool) bool {
	data, err := proto.EncodeReject(seq, reason, retry)
	if err != nil {
		h.logf("[ws] encode reject: %v", err)
		return true
	}
	return sub.Send(data) == nil
}

func (h *Handler) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}
