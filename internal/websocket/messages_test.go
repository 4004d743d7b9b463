package websocket

import (
	"encoding/json"
	"testing"
)

func TestMessageValidator_ValidateAudioChunk(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name: "valid audio chunk",
			message: `{
				"type": "audio_chunk",
				"audio_data": "SGVsbG8gV29ybGQ=",
				"sample_rate": 16000,
				"encoding": "pcm",
				"chunk_sequence": 1,
				"is_final": false
			}`,
			wantErr: false,
		},
		{
			name: "final chunk without audio data",
			message: `{
				"type": "audio_chunk",
				"sample_rate": 16000,
				"encoding": "wav",
				"chunk_sequence": 3,
				"is_final": true
			}`,
			wantErr: false,
		},
		{
			name: "missing audio data",
			message: `{
				"type": "audio_chunk",
				"sample_rate": 16000,
				"encoding": "pcm",
				"chunk_sequence": 0
			}`,
			wantErr: true,
		},
		{
			name: "invalid sample rate",
			message: `{
				"type": "audio_chunk",
				"audio_data": "SGVsbG8gV29ybGQ=",
				"sample_rate": 100000,
				"encoding": "pcm"
			}`,
			wantErr: true,
		},
		{
			name: "invalid encoding",
			message: `{
				"type": "audio_chunk",
				"audio_data": "SGVsbG8gV29ybGQ=",
				"sample_rate": 16000,
				"encoding": "flac"
			}`,
			wantErr: true,
		},
		{
			name: "negative chunk sequence",
			message: `{
				"type": "audio_chunk",
				"audio_data": "SGVsbG8gV29ybGQ=",
				"sample_rate": 16000,
				"encoding": "pcm",
				"chunk_sequence": -1
			}`,
			wantErr: true,
		},
		{
			name:    "not json",
			message: `audio please`,
			wantErr: true,
		},
		{
			name: "unsupported type",
			message: `{
				"type": "device_status",
				"status": "online"
			}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := validator.ValidateMessage([]byte(tt.message))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, ok := parsed.(*AudioChunkMessage); !ok {
				t.Fatalf("expected AudioChunkMessage, got %T", parsed)
			}
		})
	}
}

func TestMessageValidator_ValidatePing(t *testing.T) {
	validator := NewMessageValidator()

	parsed, err := validator.ValidateMessage([]byte(`{"type": "ping", "data": "hello"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ping, ok := parsed.(*PingMessage)
	if !ok {
		t.Fatalf("expected PingMessage, got %T", parsed)
	}
	if ping.Data != "hello" {
		t.Errorf("Data = %q", ping.Data)
	}
}

func TestCreateErrorMessage(t *testing.T) {
	msg := CreateErrorMessage("invalid_message", "Message validation failed", "details")
	if msg.Type != MessageTypeError {
		t.Errorf("Type = %q", msg.Type)
	}
	if msg.Timestamp == "" {
		t.Error("Timestamp must be set")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["error_code"] != "invalid_message" {
		t.Errorf("error_code = %v", decoded["error_code"])
	}
}

func TestCreatePracticeResultMessage(t *testing.T) {
	msg := CreatePracticeResultMessage("Hello there.", true, nil)
	if msg.Type != MessageTypePracticeResult {
		t.Errorf("Type = %q", msg.Type)
	}
	if !msg.TranscriptionAvailable {
		t.Error("TranscriptionAvailable must be true")
	}
	if msg.Transcription != "Hello there." {
		t.Errorf("Transcription = %q", msg.Transcription)
	}
}
