// Package proto defines the websocket wire messages exchanged with UI
// clients: a handful of operator commands inbound, snapshot and ledger
// traffic outbound. Every frame carries the protocol version.
package proto

import (
	"encoding/json"
	"fmt"

	"pinball-gacha/server/internal/gacha"
	"pinball-gacha/server/internal/ledger"
	"pinball-gacha/server/internal/sim"
)

// Version tracks the wire-protocol revision expected by clients.
const Version = 1

// Client message type identifiers.
const (
	TypeStart        = "start"
	TypeSetPolicy    = "set_policy"
	TypeSetQuota     = "set_quota"
	TypeSetDrawCount = "set_draw_count"
	TypeReset        = "reset"
	TypeHeartbeat    = "heartbeat"
)

// Server message type identifiers.
const (
	TypeHello   = "hello"
	TypeState   = "state"
	TypeArrival = "arrival"
	TypeResult  = "result"
	TypeAck     = "ack"
	TypeReject  = "reject"
)

// ClientMessage captures an inbound websocket message. Fields beyond Type
// are populated per message kind; optional knobs use pointers so absence is
// distinguishable from zero.
type ClientMessage struct {
	Ver          int     `json:"ver,omitempty"`
	Type         string  `json:"type"`
	Seq          *uint64 `json:"seq,omitempty"`
	Ack          *uint64 `json:"ack,omitempty"`
	Participants string  `json:"participants,omitempty"`
	Seed         *int64  `json:"seed,omitempty"`
	Policy       string  `json:"policy,omitempty"`
	Trigger      string  `json:"trigger,omitempty"`
	Quota        *int    `json:"quota,omitempty"`
	DrawCount    *int    `json:"drawCount,omitempty"`
	SentAt       int64   `json:"sentAt,omitempty"`
}

// DecodeClientMessage converts a raw websocket payload into a structured
// message, filling in the protocol version when the client omits it.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// CommandSeq normalizes the client sequence number: zero means untracked.
func (m ClientMessage) CommandSeq() uint64 {
	if m.Seq == nil {
		return 0
	}
	return *m.Seq
}

// Hello greets a fresh subscriber with its viewer id and the current state.
type Hello struct {
	Ver        int          `json:"ver"`
	Type       string       `json:"type"`
	Viewer     string       `json:"viewer"`
	ServerTime int64        `json:"serverTime"`
	Snapshot   sim.Snapshot `json:"snapshot"`
}

// EncodeHello renders the subscribe greeting.
func EncodeHello(viewer string, serverTime int64, snap sim.Snapshot) ([]byte, error) {
	return json.Marshal(Hello{
		Ver:        Version,
		Type:       TypeHello,
		Viewer:     viewer,
		ServerTime: serverTime,
		Snapshot:   snap,
	})
}

// State is the periodic snapshot broadcast. Sequence increases per broadcast
// so clients can detect gaps introduced by the send-latest drop policy.
type State struct {
	Ver        int          `json:"ver"`
	Type       string       `json:"type"`
	Sequence   uint64       `json:"sequence"`
	ServerTime int64        `json:"serverTime"`
	Snapshot   sim.Snapshot `json:"snapshot"`
}

// EncodeState renders a state broadcast frame.
func EncodeState(sequence uint64, serverTime int64, snap sim.Snapshot) ([]byte, error) {
	return json.Marshal(State{
		Ver:        Version,
		Type:       TypeState,
		Sequence:   sequence,
		ServerTime: serverTime,
		Snapshot:   snap,
	})
}

// Arrival pushes a single ledger append for the live order display.
type Arrival struct {
	Ver     int            `json:"ver"`
	Type    string         `json:"type"`
	Session string         `json:"session"`
	Arrival ledger.Arrival `json:"arrival"`
}

// EncodeArrival renders one arrival delta.
func EncodeArrival(session string, arrival ledger.Arrival) ([]byte, error) {
	return json.Marshal(Arrival{
		Ver:     Version,
		Type:    TypeArrival,
		Session: session,
		Arrival: arrival,
	})
}

// Result pushes the sealed draw exactly once per session.
type Result struct {
	Ver     int          `json:"ver"`
	Type    string       `json:"type"`
	Session string       `json:"session"`
	Result  gacha.Result `json:"result"`
}

// EncodeResult renders the sealed gacha result.
func EncodeResult(session string, result gacha.Result) ([]byte, error) {
	return json.Marshal(Result{
		Ver:     Version,
		Type:    TypeResult,
		Session: session,
		Result:  result,
	})
}

// Ack acknowledges a processed command by client sequence number.
type Ack struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
	Tick uint64 `json:"tick,omitempty"`
}

// EncodeAck renders a command acknowledgement.
func EncodeAck(seq, tick uint64) ([]byte, error) {
	return json.Marshal(Ack{Ver: Version, Type: TypeAck, Seq: seq, Tick: tick})
}

// Reject notifies the client that a command was refused. Retry marks
// transient refusals (queue pressure) as safe to resend.
type Reject struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Seq    uint64 `json:"seq"`
	Reason string `json:"reason"`
	Retry  bool   `json:"retry,omitempty"`
}

// EncodeReject renders a command rejection.
func EncodeReject(seq uint64, reason string, retry bool) ([]byte, error) {
	return json.Marshal(Reject{Ver: Version, Type: TypeReject, Seq: seq, Reason: reason, Retry: retry})
}

// Heartbeat echoes timing metadata back to the client.
type Heartbeat struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
	RTTMillis  int64  `json:"rtt"`
}

// EncodeHeartbeat renders a heartbeat acknowledgement.
func EncodeHeartbeat(serverTime, clientTime, rttMillis int64) ([]byte, error) {
	return json.Marshal(Heartbeat{
		Ver:        Version,
		Type:       TypeHeartbeat,
		ServerTime: serverTime,
		ClientTime: clientTime,
		RTTMillis:  rttMillis,
	})
}
