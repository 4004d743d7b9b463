package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/speakai/server/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeAudioChunk     MessageType = "audio_chunk"
	MessageTypePracticeResult MessageType = "practice_result"
	MessageTypePing           MessageType = "ping"
	MessageTypePong           MessageType = "pong"
	MessageTypeError          MessageType = "error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// AudioChunkMessage is one chunk of a live practice utterance. Chunks are
// buffered per connection and processed when is_final arrives.
type AudioChunkMessage struct {
	BaseMessage
	AudioData  string `json:"audio_data"` // base64 encoded
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	ChunkSeq   int    `json:"chunk_sequence"`
	IsFinal    bool   `json:"is_final"`
	Language   string `json:"language,omitempty"`
	Speak      bool   `json:"speak,omitempty"` // request spoken reply audio
}

// PracticeResultMessage carries the transcription and feedback for one
// completed utterance
type PracticeResultMessage struct {
	BaseMessage
	Transcription          string             `json:"transcription"`
	TranscriptionAvailable bool               `json:"transcription_available"`
	Feedback               *entities.Feedback `json:"feedback"`
	AudioData              string             `json:"audio_data,omitempty"` // base64 encoded TTS reply
	ProcessingTime         int64              `json:"processing_time_ms,omitempty"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// validEncodings are the audio encodings accepted over the live channel
var validEncodings = map[string]bool{
	"pcm": true, "wav": true, "mp3": true, "opus": true,
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	// First parse as base message to get type
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeAudioChunk:
		var msg AudioChunkMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid audio chunk message: %w", err)
		}
		if err := v.validateAudioChunk(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validateAudioChunk validates audio chunk message fields
func (v *MessageValidator) validateAudioChunk(msg *AudioChunkMessage) error {
	if msg.AudioData == "" && !msg.IsFinal {
		return fmt.Errorf("audio_data is required")
	}
	if msg.SampleRate < 8000 || msg.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000")
	}
	if msg.Encoding == "" {
		return fmt.Errorf("encoding is required")
	}
	if !validEncodings[msg.Encoding] {
		return fmt.Errorf("encoding must be one of: pcm, wav, mp3, opus")
	}
	if msg.ChunkSeq < 0 {
		return fmt.Errorf("chunk_sequence must not be negative")
	}
	return nil
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeError,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePong,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Data: data,
	}
}

// CreatePracticeResultMessage creates the reply for one finished utterance
func CreatePracticeResultMessage(transcription string, available bool, feedback *entities.Feedback) *PracticeResultMessage {
	return &PracticeResultMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePracticeResult,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Transcription:          transcription,
		TranscriptionAvailable: available,
		Feedback:               feedback,
	}
}
