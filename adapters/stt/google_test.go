package stt

import (
	"testing"

	"go.uber.org/zap"

	"github.com/speakai/server/domain/repositories"
)

var _ repositories.Transcriber = NewGoogleSpeech(zap.NewNop())

func TestWhisperLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"en-US", "en"},
		{"vi-VN", "vi"},
		{"en", "en"},
		{"", "en"},
		{"FR-fr", "fr"},
	}

	for _, tt := range tests {
		if got := whisperLanguage(tt.in); got != tt.want {
			t.Errorf("whisperLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
