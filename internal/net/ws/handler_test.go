package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pinball-gacha/server/internal/hub"
	"pinball-gacha/server/internal/net/intake"
	"pinball-gacha/server/internal/net/proto"
	"pinball-gacha/server/internal/session"
	"pinball-gacha/server/internal/sim"
	"pinball-gacha/server/internal/telemetry"
)

// dialTestServer stands up a hub without the tick loop so the only frames on
// the wire are the handler's own replies.
func dialTestServer(t *testing.T) (*websocket.Conn, *hub.Hub) {
	t.Helper()

	deps := sim.Deps{
		Logger:  telemetry.LoggerFunc(func(string, ...any) {}),
		Metrics: telemetry.NewCounters(),
	}
	core := session.New(deps, session.DefaultConfig())
	h := hub.New(hub.DefaultConfig(), core, nil)
	t.Cleanup(h.Stop)

	handler := NewHandler(h, HandlerConfig{
		Logger:  telemetry.LoggerFunc(t.Logf),
		Metrics: telemetry.NewCounters(),
	})
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)

	conn, resp, err := websocket.DefaultDialer.Dial(websocketURL(srv.URL), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	})
	return conn, h
}

func websocketURL(baseURL string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http")
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	return payload
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("failed to send %q: %v", raw, err)
	}
}

func TestHelloArrivesFirst(t *testing.T) {
	conn, _ := dialTestServer(t)

	var hello proto.Hello
	if err := json.Unmarshal(readFrame(t, conn), &hello); err != nil {
		t.Fatalf("decode hello: %v", err)
	}
	if hello.Type != proto.TypeHello || hello.Ver != proto.Version {
		t.Fatalf("unexpected hello header %+v", hello)
	}
	if hello.Viewer != "viewer-1" {
		t.Fatalf("hello names viewer %q", hello.Viewer)
	}
	if hello.Snapshot.Phase != sim.PhaseIdle {
		t.Fatalf("fresh hub should greet with idle, got %q", hello.Snapshot.Phase)
	}
}

func TestCommandAckAndDedup(t *testing.T) {
	conn, h := dialTestServer(t)
	readFrame(t, conn) // hello

	send(t, conn, `{"type":"start","participants":"ami\nben","seq":1}`)

	var ack proto.Ack
	if err := json.Unmarshal(readFrame(t, conn), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Type != proto.TypeAck || ack.Seq != 1 {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if got := h.Diagnostics().PendingCommands; got != 1 {
		t.Fatalf("expected one queued command, got %d", got)
	}

	// The same sequence again is acknowledged without re-staging.
	send(t, conn, `{"type":"start","participants":"ami\nben","seq":1}`)
	if err := json.Unmarshal(readFrame(t, conn), &ack); err != nil {
		t.Fatalf("decode duplicate ack: %v", err)
	}
	if ack.Seq != 1 {
		t.Fatalf("duplicate ack carries seq %d", ack.Seq)
	}
	if got := h.Diagnostics().PendingCommands; got != 1 {
		t.Fatalf("duplicate must not enqueue, pending=%d", got)
	}
}

func TestRejectsCarryReason(t *testing.T) {
	conn, h := dialTestServer(t)
	readFrame(t, conn) // hello

	send(t, conn, `{"type":"dance","seq":2}`)

	var reject proto.Reject
	if err := json.Unmarshal(readFrame(t, conn), &reject); err != nil {
		t.Fatalf("decode reject: %v", err)
	}
	if reject.Type != proto.TypeReject || reject.Seq != 2 {
		t.Fatalf("unexpected reject %+v", reject)
	}
	if reject.Reason != intake.RejectUnknownType {
		t.Fatalf("expected unknown_type, got %q", reject.Reason)
	}
	if reject.Retry {
		t.Fatalf("unknown types are not retryable")
	}

	send(t, conn, `{"type":"start","participants":"  ","seq":3}`)
	if err := json.Unmarshal(readFrame(t, conn), &reject); err != nil {
		t.Fatalf("decode reject: %v", err)
	}
	if reject.Seq != 3 || reject.Reason != intake.RejectInvalidPayload {
		t.Fatalf("blank roster should reject invalid_payload, got %+v", reject)
	}

	if got := h.Diagnostics().PendingCommands; got != 0 {
		t.Fatalf("rejected messages must not enqueue, pending=%d", got)
	}
}

func TestHeartbeatEchoesClientTime(t *testing.T) {
	conn, _ := dialTestServer(t)
	readFrame(t, conn) // hello

	sentAt := time.Now().Add(-10 * time.Millisecond).UnixMilli()
	send(t, conn, `{"type":"heartbeat","sentAt":`+strconv.FormatInt(sentAt, 10)+`}`)

	var beat proto.Heartbeat
	if err := json.Unmarshal(readFrame(t, conn), &beat); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if beat.Type != proto.TypeHeartbeat {
		t.Fatalf("unexpected reply %+v", beat)
	}
	if beat.ClientTime != sentAt {
		t.Fatalf("client time echoed as %d, want %d", beat.ClientTime, sentAt)
	}
	if beat.ServerTime == 0 {
		t.Fatalf("server time missing")
	}
	if beat.RTTMillis < 0 {
		t.Fatalf("negative rtt %d", beat.RTTMillis)
	}
}

func TestMalformedPayloadKeepsConnectionAlive(t *testing.T) {
	conn, _ := dialTestServer(t)
	readFrame(t, conn) // hello

	send(t, conn, `{"type":`)

	// The connection survives; a follow-up heartbeat still answers.
	send(t, conn, `{"type":"heartbeat","sentAt":0}`)
	var beat proto.Heartbeat
	if err := json.Unmarshal(readFrame(t, conn), &beat); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if beat.Type != proto.TypeHeartbeat {
		t.Fatalf("expected heartbeat reply, got %+v", beat)
	}
}

func TestForeignProtocolVersionIsDiscarded(t *testing.T) {
	conn, h := dialTestServer(t)
	readFrame(t, conn) // hello

	send(t, conn, `{"ver":99,"type":"reset","seq":4}`)

	// No reply for undecodable traffic; the queue stays empty.
	send(t, conn, `{"type":"heartbeat","sentAt":0}`)
	var beat proto.Heartbeat
	if err := json.Unmarshal(readFrame(t, conn), &beat); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if beat.Type != proto.TypeHeartbeat {
		t.Fatalf("expected heartbeat reply, got %+v", beat)
	}
	if got := h.Diagnostics().PendingCommands; got != 0 {
		t.Fatalf("foreign version must not enqueue, pending=%d", got)
	}
}

