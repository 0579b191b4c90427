package ws

import (
	"encoding/json"
	"testing"
)

func TestUnmarshalRequestFrame(t *testing.T) {
	data := []byte(`{"type":"req","id":"1","method":"refresh","params":{"scope":"all","concurrency":8}}`)

	frame, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}
	if frame.Type != FrameTypeRequest {
		t.Errorf("type: got %q", frame.Type)
	}
	if frame.Method != string(MethodRefresh) {
		t.Errorf("method: got %q", frame.Method)
	}

	var params struct {
		Scope       string `json:"scope"`
		Concurrency int    `json:"concurrency"`
	}
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.Scope != "all" || params.Concurrency != 8 {
		t.Errorf("params: got %+v", params)
	}
}

func TestResponseFrameRoundtrip(t *testing.T) {
	f, err := NewResponseFrame("42", true, map[string]string{"status": "accepted"}, "")
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}

	data, err := MarshalFrame(f)
	if err != nil {
		t.Fatalf("MarshalFrame: %v", err)
	}

	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}
	if got.Type != FrameTypeResponse || got.ID != "42" {
		t.Errorf("frame: got %+v", got)
	}
	if got.OK == nil || !*got.OK {
		t.Error("expected ok=true")
	}

	var payload map[string]string
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["status"] != "accepted" {
		t.Errorf("payload: got %v", payload)
	}
}

func TestErrorResponseFrame(t *testing.T) {
	f, err := NewResponseFrame("7", false, nil, "unknown method: prune")
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}
	if f.OK == nil || *f.OK {
		t.Error("expected ok=false")
	}
	if f.Error != "unknown method: prune" {
		t.Errorf("error: got %q", f.Error)
	}
	if f.Payload != nil {
		t.Errorf("payload: got %s", f.Payload)
	}
}

func TestEventFrame(t *testing.T) {
	f, err := NewEventFrame("refresh.progress", map[string]int{"completed": 3, "total": 10})
	if err != nil {
		t.Fatalf("NewEventFrame: %v", err)
	}
	if f.Type != FrameTypeEvent || f.Event != "refresh.progress" {
		t.Errorf("frame: got %+v", f)
	}

	var payload map[string]int
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["completed"] != 3 || payload["total"] != 10 {
		t.Errorf("payload: got %v", payload)
	}
}
