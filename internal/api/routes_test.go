package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"

	"github.com/speakai/server/adapters/memory"
	"github.com/speakai/server/adapters/storage"
	"github.com/speakai/server/internal/auth"
	"github.com/speakai/server/internal/websocket"
	"github.com/speakai/server/usecase"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) TranscribeBytes(ctx context.Context, audio []byte, ext, language string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeLLM struct {
	response         string
	feedbackResponse string
	err              error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.feedbackResponse != "" && strings.Contains(prompt, "GRAMMAR:") {
		return f.feedbackResponse, nil
	}
	return f.response, nil
}

const analysisResponse = `GRAMMAR:
- issue: I visited the museum last weekend | correction: I visited the museum last weekend with my family | explanation: Consider adding detail | severity: 4
VOCABULARY:
- original: visited | suggestion: explored | example: I explored the museum for hours.
POSITIVES:
- Good use of the past tense.
FLUENCY:
- Keep your sentences flowing with connectors.`

type testServer struct {
	echo    *echo.Echo
	records *memory.Records
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	records := memory.NewRecords()

	store, err := storage.NewLocalAudioStore(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}

	llm := &fakeLLM{
		response:         "That sounds great! What happened next?",
		feedbackResponse: analysisResponse,
	}
	feedback := usecase.NewFeedbackService(llm, logger)
	transcriber := &fakeTranscriber{text: "I visited the museum last weekend."}

	mistakeSvc := usecase.NewMistakeService(records.Mistakes(), logger)
	audioSvc := usecase.NewAudioService(store, records.Audio(), records.Feedback(), transcriber, feedback,
		mistakeSvc, 0, logger)
	convSvc := usecase.NewConversationService(records.Conversations(), records.Messages(),
		records.Audio(), records.Feedback(), feedback, mistakeSvc, llm, logger)
	userSvc := usecase.NewUserService(records.Users(), logger)

	tokens, err := auth.NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	handler := NewHandler(userSvc, audioSvc, convSvc, mistakeSvc, records.Feedback(), records.Messages(),
		tokens, nil, "af_heart", logger)
	hub := websocket.NewHub(transcriber, feedback, nil, "af_heart", logger)

	e := echo.New()
	InitRoutes(e, handler, hub)

	return &testServer{echo: e, records: records}
}

func (s *testServer) do(t *testing.T, method, path, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) registerUser(t *testing.T, email string) string {
	t.Helper()
	payload, _ := json.Marshal(RegisterRequest{Email: email, Name: "Learner", Password: "s3cret-pass"})
	rec := s.do(t, http.MethodPost, "/api/v1/users/register", "", payload, echo.MIMEApplicationJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp AuthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Token
}

func (s *testServer) uploadAudio(t *testing.T, token, filename string, data []byte) map[string]interface{} {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	writer.Close()

	rec := s.do(t, http.MethodPost, "/api/v1/audio/transcriptions", token, buf.Bytes(), writer.FormDataContentType())
	if rec.Code != http.StatusOK {
		t.Fatalf("upload returned %d: %s", rec.Code, rec.Body.String())
	}
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	return result
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
}

func TestRegisterLoginFlow(t *testing.T) {
	s := newTestServer(t)

	token := s.registerUser(t, "learner@example.com")
	if token == "" {
		t.Fatal("register must return a token")
	}

	// Duplicate registration is a conflict.
	payload, _ := json.Marshal(RegisterRequest{Email: "learner@example.com", Name: "Other", Password: "other-pass1"})
	rec := s.do(t, http.MethodPost, "/api/v1/users/register", "", payload, echo.MIMEApplicationJSON)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register returned %d", rec.Code)
	}

	payload, _ = json.Marshal(LoginRequest{Email: "learner@example.com", Password: "s3cret-pass"})
	rec = s.do(t, http.MethodPost, "/api/v1/users/login", "", payload, echo.MIMEApplicationJSON)
	if rec.Code != http.StatusOK {
		t.Errorf("login returned %d: %s", rec.Code, rec.Body.String())
	}

	payload, _ = json.Marshal(LoginRequest{Email: "learner@example.com", Password: "wrong"})
	rec = s.do(t, http.MethodPost, "/api/v1/users/login", "", payload, echo.MIMEApplicationJSON)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login returned %d", rec.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/conversations", "", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated request returned %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/conversations", "not-a-token", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token returned %d", rec.Code)
	}
}

func TestUploadAudioReturnsTranscriptionAndFeedback(t *testing.T) {
	s := newTestServer(t)
	token := s.registerUser(t, "learner@example.com")

	result := s.uploadAudio(t, token, "practice.wav", []byte("fake-wav-bytes"))

	if result["transcription"] != "I visited the museum last weekend." {
		t.Errorf("transcription = %v", result["transcription"])
	}
	if result["transcription_available"] != true {
		t.Error("transcription must be available")
	}
	if result["feedback"] == nil {
		t.Error("response must include feedback")
	}
	if result["audio_id"] == "" {
		t.Error("response must include the audio id")
	}
}

func TestUploadAudioRejectsBadFormat(t *testing.T) {
	s := newTestServer(t)
	token := s.registerUser(t, "learner@example.com")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("file", "notes.txt")
	part.Write([]byte("not audio"))
	writer.Close()

	rec := s.do(t, http.MethodPost, "/api/v1/audio/transcriptions", token, buf.Bytes(), writer.FormDataContentType())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid format returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestConversationFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.registerUser(t, "learner@example.com")

	payload, _ := json.Marshal(StartConversationRequest{
		UserRole: "Customer", AIRole: "Barista", Situation: "Ordering coffee", Gender: "female",
	})
	rec := s.do(t, http.MethodPost, "/api/v1/conversations", token, payload, echo.MIMEApplicationJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start conversation returned %d: %s", rec.Code, rec.Body.String())
	}
	var conv map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &conv)
	convID, _ := conv["id"].(string)
	if convID == "" {
		t.Fatal("conversation id missing")
	}
	if conv["voice_name"] == "" {
		t.Error("a voice must be assigned")
	}

	upload := s.uploadAudio(t, token, "turn.wav", []byte("audio"))
	audioID, _ := upload["audio_id"].(string)

	rec = s.do(t, http.MethodPost, "/api/v1/conversations/"+convID+"/messages?audio_id="+audioID, token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("post message returned %d: %s", rec.Code, rec.Body.String())
	}
	var turn map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &turn)
	if turn["user_message"] == nil || turn["ai_message"] == nil || turn["feedback"] == nil {
		t.Errorf("turn result incomplete: %v", turn)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/"+convID+"/messages", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get messages returned %d", rec.Code)
	}
	var messages []map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &messages)
	if len(messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(messages))
	}

	// Feedback endpoint for the user message.
	userMsg := turn["user_message"].(map[string]interface{})
	rec = s.do(t, http.MethodGet, "/api/v1/messages/"+userMsg["id"].(string)+"/feedback", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("get feedback returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/conversations/"+convID+"/end", token, nil, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("end conversation returned %d", rec.Code)
	}
}

func TestConversationAccessControl(t *testing.T) {
	s := newTestServer(t)
	owner := s.registerUser(t, "owner@example.com")
	other := s.registerUser(t, "other@example.com")

	payload, _ := json.Marshal(StartConversationRequest{})
	rec := s.do(t, http.MethodPost, "/api/v1/conversations", owner, payload, echo.MIMEApplicationJSON)
	if rec.Code != http.StatusCreated {
		t.Fatal(rec.Body.String())
	}
	var conv map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &conv)
	convID := conv["id"].(string)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/"+convID, other, nil, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign access returned %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/652f00000000000000000000", owner, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing conversation returned %d", rec.Code)
	}
}

func TestGetAudioOwnership(t *testing.T) {
	s := newTestServer(t)
	owner := s.registerUser(t, "owner@example.com")
	other := s.registerUser(t, "other@example.com")

	upload := s.uploadAudio(t, owner, "mine.wav", []byte("audio"))
	audioID := upload["audio_id"].(string)

	rec := s.do(t, http.MethodGet, "/api/v1/audio/"+audioID, owner, nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("owner access returned %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/audio/"+audioID, other, nil, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign access returned %d", rec.Code)
	}
}

func TestTTSUnavailableWithoutService(t *testing.T) {
	s := newTestServer(t)
	token := s.registerUser(t, "learner@example.com")

	rec := s.do(t, http.MethodGet, "/api/v1/tts/demo", token, nil, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("tts demo returned %d", rec.Code)
	}
}

func TestMistakeTrackingFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.registerUser(t, "learner@example.com")
	ctx := context.Background()

	// Two uploads produce the same mistakes; they must be deduplicated.
	s.uploadAudio(t, token, "practice.wav", []byte("audio"))
	s.uploadAudio(t, token, "practice2.wav", []byte("audio"))

	rec := s.do(t, http.MethodGet, "/api/v1/mistakes", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list mistakes returned %d: %s", rec.Code, rec.Body.String())
	}
	var mistakes []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &mistakes); err != nil {
		t.Fatal(err)
	}
	if len(mistakes) != 2 {
		t.Fatalf("tracked %d mistakes, want 2 (one grammar, one vocabulary)", len(mistakes))
	}
	if mistakes[0]["frequency"].(float64) != 2 {
		t.Errorf("frequency = %v, want 2 after the repeated upload", mistakes[0]["frequency"])
	}

	rec = s.do(t, http.MethodGet, "/api/v1/mistakes/statistics", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("statistics returned %d: %s", rec.Code, rec.Body.String())
	}
	var stats map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats["total_count"].(float64) != 2 || stats["new_count"].(float64) != 2 {
		t.Errorf("statistics = %v", stats)
	}

	// Nothing is due right after recording.
	rec = s.do(t, http.MethodGet, "/api/v1/mistakes/practice", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("practice queue returned %d: %s", rec.Code, rec.Body.String())
	}
	var items []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("fresh mistakes must not be due, got %d items", len(items))
	}

	userID := mistakes[0]["user_id"].(string)
	all, err := s.records.Mistakes().GetByUserID(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range all {
		m.NextPracticeAt = time.Now().UTC().Add(-time.Minute)
		if err := s.records.Mistakes().Update(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	rec = s.do(t, http.MethodGet, "/api/v1/mistakes/practice", token, nil, "")
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("queue length = %d, want 2", len(items))
	}
	if items[0]["prompt"] == "" {
		t.Error("practice items must carry a prompt")
	}

	mistakeID := all[0].ID.Hex()
	attempt, _ := json.Marshal(PracticeAttemptRequest{WasSuccessful: true})
	rec = s.do(t, http.MethodPost, "/api/v1/mistakes/"+mistakeID+"/practice", token, attempt, echo.MIMEApplicationJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("record practice returned %d: %s", rec.Code, rec.Body.String())
	}
	var outcome map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatal(err)
	}
	if outcome["feedback"] == "" {
		t.Error("practice outcome must carry a feedback line")
	}
	updated := outcome["mistake"].(map[string]interface{})
	if updated["status"] != "LEARNING" {
		t.Errorf("status = %v, want LEARNING", updated["status"])
	}

	// Mistakes are private per user.
	otherToken := s.registerUser(t, "other@example.com")
	rec = s.do(t, http.MethodPost, "/api/v1/mistakes/"+mistakeID+"/practice", otherToken, attempt, echo.MIMEApplicationJSON)
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign practice returned %d, want 403", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/mistakes", otherToken, nil, "")
	var foreign []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &foreign); err != nil {
		t.Fatal(err)
	}
	if len(foreign) != 0 {
		t.Errorf("other user sees %d mistakes, want 0", len(foreign))
	}

	rec = s.do(t, http.MethodPost, "/api/v1/mistakes/652f00000000000000000000/practice", token, attempt, echo.MIMEApplicationJSON)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown mistake returned %d, want 404", rec.Code)
	}
}

func TestDegradedUploadStillSucceeds(t *testing.T) {
	logger := zaptest.NewLogger(t)
	records := memory.NewRecords()
	store, err := storage.NewLocalAudioStore(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}

	llm := &fakeLLM{err: errors.New("model down")}
	feedback := usecase.NewFeedbackService(llm, logger)
	transcriber := &fakeTranscriber{err: errors.New("all backends failed")}

	audioSvc := usecase.NewAudioService(store, records.Audio(), records.Feedback(), transcriber, feedback,
		nil, 0, logger)
	convSvc := usecase.NewConversationService(records.Conversations(), records.Messages(),
		records.Audio(), records.Feedback(), feedback, nil, llm, logger)
	userSvc := usecase.NewUserService(records.Users(), logger)
	tokens, _ := auth.NewManager("test-secret", time.Hour)

	handler := NewHandler(userSvc, audioSvc, convSvc, nil, records.Feedback(), records.Messages(),
		tokens, nil, "af_heart", logger)
	hub := websocket.NewHub(transcriber, feedback, nil, "af_heart", logger)

	e := echo.New()
	InitRoutes(e, handler, hub)
	s := &testServer{echo: e, records: records}

	token := s.registerUser(t, "learner@example.com")
	result := s.uploadAudio(t, token, "practice.wav", []byte("audio"))

	if result["transcription_available"] != false {
		t.Error("transcription must be unavailable")
	}
	if result["feedback"] == nil {
		t.Error("degraded upload must still return feedback")
	}
}
