package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
		msgID   string
		payload any
		wantErr bool
	}{
		{
			name:    "Download message",
			msgType: TypeDownload,
			msgID:   "test123",
			payload: Download{File: "report.pdf"},
			wantErr: false,
		},
		{
			name:    "StatusUpdate message",
			msgType: TypeStatusUpdate,
			msgID:   "test456",
			payload: StatusUpdate{File: "report.pdf", Status: StatusComplete},
			wantErr: false,
		},
		{
			name:    "AgentStatus message",
			msgType: TypeAgentStatus,
			msgID:   "test789",
			payload: AgentStatus{Connected: true},
			wantErr: false,
		},
		{
			name:    "nil payload",
			msgType: "test",
			msgID:   "test000",
			payload: nil,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := NewEnvelope(tt.msgType, tt.msgID, tt.payload)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEnvelope() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}

			if env.V != ProtocolVersion {
				t.Errorf("NewEnvelope() V = %d, want %d", env.V, ProtocolVersion)
			}
			if env.Type != tt.msgType {
				t.Errorf("NewEnvelope() Type = %s, want %s", env.Type, tt.msgType)
			}
			if env.MsgID != tt.msgID {
				t.Errorf("NewEnvelope() MsgID = %s, want %s", env.MsgID, tt.msgID)
			}
		})
	}
}

func TestEnvelope_JSONRoundTrip(t *testing.T) {
	original, err := NewEnvelope(TypeStatusUpdate, NewMsgID(), StatusUpdate{
		File:   "data.bin",
		Status: StatusDownloading,
	})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	original.From = "agent"

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if err := decoded.ValidateBasic(); err != nil {
		t.Fatalf("ValidateBasic() after unmarshal error = %v", err)
	}
	if decoded.Type != original.Type {
		t.Errorf("unmarshal Type = %s, want %s", decoded.Type, original.Type)
	}
	if decoded.MsgID != original.MsgID {
		t.Errorf("unmarshal MsgID = %s, want %s", decoded.MsgID, original.MsgID)
	}
	if decoded.From != "agent" {
		t.Errorf("unmarshal From = %s, want agent", decoded.From)
	}

	var update StatusUpdate
	if err := decoded.DecodePayload(&update); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if update.File != "data.bin" {
		t.Errorf("DecodePayload() File = %s, want data.bin", update.File)
	}
	if update.Status != StatusDownloading {
		t.Errorf("DecodePayload() Status = %s, want %s", update.Status, StatusDownloading)
	}
}

func TestEnvelope_UnknownFieldsIgnored(t *testing.T) {
	jsonData := `{
		"v": 1,
		"type": "download",
		"msg_id": "test123",
		"from": "server",
		"unknown_field": "should be ignored",
		"another_unknown": 123,
		"payload": {"file":"a.txt"}
	}`

	var env Envelope
	if err := json.Unmarshal([]byte(jsonData), &env); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if err := env.ValidateBasic(); err != nil {
		t.Fatalf("ValidateBasic() error = %v", err)
	}

	var cmd Download
	if err := env.DecodePayload(&cmd); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if cmd.File != "a.txt" {
		t.Errorf("DecodePayload() File = %s, want a.txt", cmd.File)
	}
}

func TestEnvelope_ValidateBasic(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{
			name:    "valid envelope",
			env:     Envelope{V: ProtocolVersion, Type: TypeDownload, MsgID: "test123"},
			wantErr: false,
		},
		{
			name:    "wrong version",
			env:     Envelope{V: 999, Type: TypeDownload, MsgID: "test123"},
			wantErr: true,
		},
		{
			name:    "missing type",
			env:     Envelope{V: ProtocolVersion, MsgID: "test123"},
			wantErr: true,
		},
		{
			name:    "missing msg_id",
			env:     Envelope{V: ProtocolVersion, Type: TypeDownload},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.ValidateBasic()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBasic() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewMsgID(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewMsgID()
		if len(id) != 16 {
			t.Errorf("NewMsgID() length = %d, want 16", len(id))
		}
		if ids[id] {
			t.Errorf("NewMsgID() generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

func TestStatus(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusDownloading, StatusComplete, StatusError} {
		if !s.Valid() {
			t.Errorf("Status(%s).Valid() = false, want true", s)
		}
	}
	if Status("done").Valid() {
		t.Error("Status(done).Valid() = true, want false")
	}
	if StatusDownloading.Terminal() {
		t.Error("downloading reported as terminal")
	}
	if !StatusComplete.Terminal() || !StatusError.Terminal() {
		t.Error("complete/error should be terminal")
	}
}
