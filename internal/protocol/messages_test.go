package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	raw := []byte(`{"type":"queue:add","req_id":"r-1","payload":{"code":"123456","track":{"id":"t1","title":"Song"}}}`)
	req, err := DecodeRequest(raw)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if req.Type != TypeQueueAdd || req.ReqID != "r-1" {
		t.Errorf("Unexpected envelope: %+v", req)
	}

	var p QueueAddPayload
	if err := req.Bind(&p); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if p.Code != "123456" || p.Track.ID != "t1" {
		t.Errorf("Unexpected payload: %+v", p)
	}
}

func TestDecodeRequestRejectsBadFrames(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `{{{`, ErrMalformedFrame},
		{"unknown type", `{"type":"room:explode","req_id":"r-1"}`, ErrUnknownType},
		{"missing req_id", `{"type":"room:join","payload":{}}`, ErrMissingReqID},
	}
	for _, tc := range cases {
		if _, err := DecodeRequest([]byte(tc.raw)); err != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestBindRejectsEmptyAndMalformedPayload(t *testing.T) {
	req := &Request{Type: TypeRoomJoin, ReqID: "r-1"}
	var p JoinRoomPayload
	if err := req.Bind(&p); err != ErrBadPayload {
		t.Errorf("Expected ErrBadPayload for empty payload, got %v", err)
	}

	req.Payload = json.RawMessage(`"not an object"`)
	if err := req.Bind(&p); err != ErrBadPayload {
		t.Errorf("Expected ErrBadPayload for wrong shape, got %v", err)
	}
}

func TestAckNackShape(t *testing.T) {
	req := &Request{Type: TypeSyncSeek, ReqID: "r-9"}

	ack := Ack(req, &SyncAckPayload{Applied: true})
	data, err := json.Marshal(ack)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["req_id"] != "r-9" || decoded["success"] != true {
		t.Errorf("Unexpected ack frame: %v", decoded)
	}
	if _, hasErr := decoded["error"]; hasErr {
		t.Error("Ack must not carry an error field")
	}

	nack := Nack(req, ErrBadPayload)
	if nack.Success || nack.Error != "BAD_PAYLOAD" {
		t.Errorf("Unexpected nack: %+v", nack)
	}
}
