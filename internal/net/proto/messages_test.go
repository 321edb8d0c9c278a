package proto

import (
	"encoding/json"
	"testing"

	"pinball-gacha/server/internal/gacha"
	"pinball-gacha/server/internal/ledger"
	"pinball-gacha/server/internal/sim"
)

func TestDecodeClientMessage(t *testing.T) {
	t.Run("fills in the version when omitted", func(t *testing.T) {
		msg, err := DecodeClientMessage([]byte(`{"type":"reset"}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Ver != Version {
			t.Fatalf("expected default version %d, got %d", Version, msg.Ver)
		}
		if msg.Type != TypeReset {
			t.Fatalf("unexpected type %q", msg.Type)
		}
	})

	t.Run("rejects a foreign version", func(t *testing.T) {
		if _, err := DecodeClientMessage([]byte(`{"ver":99,"type":"reset"}`)); err == nil {
			t.Fatalf("expected version mismatch to fail")
		}
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		if _, err := DecodeClientMessage([]byte(`{"type":`)); err == nil {
			t.Fatalf("expected parse failure")
		}
	})

	t.Run("carries the start payload", func(t *testing.T) {
		raw := `{"type":"start","participants":"ami\nben","seed":42,"seq":7}`
		msg, err := DecodeClientMessage([]byte(raw))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Participants != "ami\nben" {
			t.Fatalf("participants = %q", msg.Participants)
		}
		if msg.Seed == nil || *msg.Seed != 42 {
			t.Fatalf("seed = %v", msg.Seed)
		}
		if msg.CommandSeq() != 7 {
			t.Fatalf("seq = %d", msg.CommandSeq())
		}
	})

	t.Run("missing seq reads as zero", func(t *testing.T) {
		msg, err := DecodeClientMessage([]byte(`{"type":"heartbeat","sentAt":123}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.CommandSeq() != 0 {
			t.Fatalf("expected untracked seq, got %d", msg.CommandSeq())
		}
	})
}

func TestEncodeStateCarriesVersionAndType(t *testing.T) {
	data, err := EncodeState(9, 1234, sim.Snapshot{Phase: sim.PhaseRunning, Tick: 88})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded State
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if decoded.Ver != Version || decoded.Type != TypeState {
		t.Fatalf("frame header = ver %d type %q", decoded.Ver, decoded.Type)
	}
	if decoded.Sequence != 9 || decoded.Snapshot.Tick != 88 {
		t.Fatalf("frame body = %+v", decoded)
	}
}

func TestEncodeArrivalAndResult(t *testing.T) {
	arrival, err := EncodeArrival("s-1", ledger.Arrival{Ball: "ball-0", Name: "ami", Seq: 0, Tick: 41, Reason: "goal"})
	if err != nil {
		t.Fatalf("encode arrival: %v", err)
	}
	var decodedArrival Arrival
	if err := json.Unmarshal(arrival, &decodedArrival); err != nil {
		t.Fatalf("round trip arrival: %v", err)
	}
	if decodedArrival.Type != TypeArrival || decodedArrival.Arrival.Name != "ami" {
		t.Fatalf("arrival frame = %+v", decodedArrival)
	}

	result, err := EncodeResult("s-1", gacha.Result{
		Policy:       ledger.FirstIn,
		Picks:        []ledger.BallRef{{Ball: "ball-0", Name: "ami"}},
		DrawCount:    1,
		Trigger:      gacha.TriggerAllExited,
		ResolvedTick: 120,
	})
	if err != nil {
		t.Fatalf("encode result: %v", err)
	}
	var decodedResult Result
	if err := json.Unmarshal(result, &decodedResult); err != nil {
		t.Fatalf("round trip result: %v", err)
	}
	if decodedResult.Type != TypeResult || len(decodedResult.Result.Picks) != 1 {
		t.Fatalf("result frame = %+v", decodedResult)
	}
}

func TestEncodeRejectOmitsRetryWhenFalse(t *testing.T) {
	data, err := EncodeReject(4, "unknown_type", false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if _, present := raw["retry"]; present {
		t.Fatalf("retry should be omitted when false: %s", data)
	}
	if raw["reason"] != "unknown_type" {
		t.Fatalf("reason = %v", raw["reason"])
	}
}
