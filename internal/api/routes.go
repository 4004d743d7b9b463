package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/speakai/server/adapters/tts"
	"github.com/speakai/server/domain/entities"
	"github.com/speakai/server/domain/repositories"
	"github.com/speakai/server/internal/auth"
	"github.com/speakai/server/internal/websocket"
	"github.com/speakai/server/usecase"
)

// Handler bundles the services behind the HTTP surface
type Handler struct {
	users         *usecase.UserService
	audio         *usecase.AudioService
	conversations *usecase.ConversationService
	mistakes      *usecase.MistakeService
	feedbackRepo  repositories.FeedbackRepository
	messageRepo   repositories.MessageRepository
	tokens        *auth.Manager
	speech        repositories.TextToSpeech
	defaultVoice  string
	logger        *zap.Logger
}

// NewHandler creates the HTTP handler set
func NewHandler(
	users *usecase.UserService,
	audio *usecase.AudioService,
	conversations *usecase.ConversationService,
	mistakes *usecase.MistakeService,
	feedbackRepo repositories.FeedbackRepository,
	messageRepo repositories.MessageRepository,
	tokens *auth.Manager,
	speech repositories.TextToSpeech,
	defaultVoice string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		users:         users,
		audio:         audio,
		conversations: conversations,
		mistakes:      mistakes,
		feedbackRepo:  feedbackRepo,
		messageRepo:   messageRepo,
		tokens:        tokens,
		speech:        speech,
		defaultVoice:  defaultVoice,
		logger:        logger,
	}
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, h *Handler, hub *websocket.Hub) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "speakai-server",
		})
	})

	v1 := e.Group("/api/v1")

	// User Management APIs
	v1.POST("/users/register", h.userRegister)
	v1.POST("/users/login", h.userLogin)

	// Authenticated APIs
	authed := v1.Group("", h.requireAuth)
	authed.POST("/audio/transcriptions", h.uploadAudio)
	authed.GET("/audio/:id", h.getAudio)
	authed.GET("/messages/:id/feedback", h.getMessageFeedback)
	authed.POST("/conversations", h.startConversation)
	authed.GET("/conversations", h.listConversations)
	authed.GET("/conversations/:id", h.getConversation)
	authed.GET("/conversations/:id/messages", h.getConversationMessages)
	authed.POST("/conversations/:id/messages", h.postConversationMessage)
	authed.POST("/conversations/:id/end", h.endConversation)
	authed.GET("/mistakes", h.listMistakes)
	authed.GET("/mistakes/statistics", h.mistakeStatistics)
	authed.GET("/mistakes/practice", h.mistakePracticeQueue)
	authed.POST("/mistakes/:id/practice", h.recordMistakePractice)
	authed.GET("/tts/messages/:id/speech", h.speakMessage)
	authed.GET("/tts/demo", h.speakDemo)

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return h.websocketWithAuth(hub, c)
	})
}

const userIDKey = "user_id"

// requireAuth validates the bearer token and stores the user id in the
// request context
func (h *Handler) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "JWT token is required in Authorization header",
			})
		}

		claims, err := h.tokens.ValidateToken(token)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired JWT token",
			})
		}

		c.Set(userIDKey, claims.UserID)
		return next(c)
	}
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if len(header) > 7 && header[:7] == "Bearer " {
		return header[7:]
	}
	return ""
}

func currentUserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

func (h *Handler) userRegister(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	user, err := h.users.Register(c.Request().Context(), req.Email, req.Name, req.Password)
	if err != nil {
		var vErr *entities.ValidationError
		switch {
		case errors.As(err, &vErr):
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: vErr.Reason,
			})
		case errors.Is(err, usecase.ErrEmailInUse):
			return c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "email_in_use",
				Message: "This email is already registered",
			})
		default:
			h.logger.Error("Registration failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to register user",
			})
		}
	}

	return h.authResponse(c, http.StatusCreated, user)
}

func (h *Handler) userLogin(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	user, err := h.users.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_credentials",
				Message: "Invalid email or password",
			})
		}
		h.logger.Error("Login failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to log in",
		})
	}

	return h.authResponse(c, http.StatusOK, user)
}

func (h *Handler) authResponse(c echo.Context, status int, user *entities.User) error {
	token, err := h.tokens.GenerateToken(user.ID.Hex())
	if err != nil {
		h.logger.Error("Failed to generate token",
			zap.String("user_id", user.ID.Hex()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	return c.JSON(status, AuthResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.tokens.Expiry()),
		User:      user,
	})
}

// uploadAudio accepts a multipart audio upload and runs the processing
// pipeline: validate, store, transcribe, generate feedback
func (h *Handler) uploadAudio(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_file",
			Message: "A multipart field named 'file' is required",
		})
	}

	src, err := file.Open()
	if err != nil {
		h.logger.Error("Failed to open upload", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to read upload",
		})
	}
	defer src.Close()

	result, err := h.audio.ProcessAudio(c.Request().Context(), usecase.ProcessRequest{
		UserID:    currentUserID(c),
		Filename:  file.Filename,
		Size:      file.Size,
		Data:      src,
		Language:  c.FormValue("language"),
		Reference: c.FormValue("reference"),
	})
	if err != nil {
		return h.audioError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

func (h *Handler) audioError(c echo.Context, err error) error {
	var vErr *entities.ValidationError
	if errors.As(err, &vErr) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_audio",
			Message: vErr.Reason,
		})
	}

	var sErr *entities.StorageError
	if errors.As(err, &sErr) {
		h.logger.Error("Audio storage failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "storage_failed",
			Message: "Failed to store audio file",
		})
	}

	h.logger.Error("Audio processing failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Failed to process audio",
	})
}

func (h *Handler) getAudio(c echo.Context) error {
	record, err := h.audio.GetAudio(c.Request().Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		return h.conversationError(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) getMessageFeedback(c echo.Context) error {
	ctx := c.Request().Context()
	messageID := c.Param("id")

	msg, err := h.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		h.logger.Error("Failed to load message", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load message",
		})
	}
	if msg == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Message not found",
		})
	}

	// Ownership travels through the conversation.
	if _, err := h.conversations.GetConversation(ctx, msg.ConversationID.Hex(), currentUserID(c)); err != nil {
		return h.conversationError(c, err)
	}

	fb, err := h.feedbackRepo.GetByTargetID(ctx, messageID)
	if err != nil {
		h.logger.Error("Failed to load feedback", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load feedback",
		})
	}
	if fb == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "No feedback for this message",
		})
	}

	return c.JSON(http.StatusOK, fb)
}

func (h *Handler) startConversation(c echo.Context) error {
	var req StartConversationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	voice := req.VoiceName
	if voice == "" {
		voice = tts.PickVoice(req.Gender)
	}

	conv, err := h.conversations.StartConversation(c.Request().Context(),
		currentUserID(c), req.UserRole, req.AIRole, req.Situation, voice)
	if err != nil {
		h.logger.Error("Failed to start conversation", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to start conversation",
		})
	}

	return c.JSON(http.StatusCreated, conv)
}

func (h *Handler) listConversations(c echo.Context) error {
	conversations, err := h.conversations.ListConversations(c.Request().Context(), currentUserID(c))
	if err != nil {
		h.logger.Error("Failed to list conversations", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to list conversations",
		})
	}
	if conversations == nil {
		conversations = []*entities.Conversation{}
	}
	return c.JSON(http.StatusOK, conversations)
}

func (h *Handler) getConversation(c echo.Context) error {
	conv, err := h.conversations.GetConversation(c.Request().Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		return h.conversationError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *Handler) getConversationMessages(c echo.Context) error {
	messages, err := h.conversations.GetMessages(c.Request().Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		return h.conversationError(c, err)
	}
	if messages == nil {
		messages = []*entities.Message{}
	}
	return c.JSON(http.StatusOK, messages)
}

// postConversationMessage runs one conversation turn from an uploaded
// audio record identified by the audio_id query parameter
func (h *Handler) postConversationMessage(c echo.Context) error {
	audioID := c.QueryParam("audio_id")
	if audioID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_audio_id",
			Message: "audio_id query parameter is required",
		})
	}

	result, err := h.conversations.ProcessUserMessage(c.Request().Context(),
		c.Param("id"), audioID, currentUserID(c))
	if err != nil {
		return h.conversationError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

func (h *Handler) endConversation(c echo.Context) error {
	if err := h.conversations.EndConversation(c.Request().Context(), c.Param("id"), currentUserID(c)); err != nil {
		return h.conversationError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// listMistakes returns the user's tracked mistakes; status=unmastered
// filters out mastered ones
func (h *Handler) listMistakes(c echo.Context) error {
	unmasteredOnly := c.QueryParam("status") == "unmastered"
	mistakes, err := h.mistakes.ListMistakes(c.Request().Context(), currentUserID(c), unmasteredOnly)
	if err != nil {
		h.logger.Error("Failed to list mistakes", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to list mistakes",
		})
	}
	if mistakes == nil {
		mistakes = []*entities.Mistake{}
	}
	return c.JSON(http.StatusOK, mistakes)
}

func (h *Handler) mistakeStatistics(c echo.Context) error {
	stats, err := h.mistakes.Statistics(c.Request().Context(), currentUserID(c))
	if err != nil {
		h.logger.Error("Failed to compute mistake statistics", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to compute mistake statistics",
		})
	}
	return c.JSON(http.StatusOK, stats)
}

// mistakePracticeQueue returns drill exercises that are due now
func (h *Handler) mistakePracticeQueue(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, err := h.mistakes.PracticeQueue(c.Request().Context(), currentUserID(c), limit)
	if err != nil {
		h.logger.Error("Failed to load practice queue", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load practice queue",
		})
	}
	if items == nil {
		items = []*usecase.PracticeItem{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) recordMistakePractice(c echo.Context) error {
	var req PracticeAttemptRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	outcome, err := h.mistakes.RecordPractice(c.Request().Context(),
		currentUserID(c), c.Param("id"), req.WasSuccessful)
	if err != nil {
		return h.conversationError(c, err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func (h *Handler) conversationError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrMistakeNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Mistake not found",
		})
	case errors.Is(err, usecase.ErrConversationNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Conversation not found",
		})
	case errors.Is(err, usecase.ErrAudioNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Audio record not found",
		})
	case errors.Is(err, usecase.ErrAccessDenied):
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "access_denied",
			Message: "You do not have access to this resource",
		})
	case errors.Is(err, usecase.ErrConversationEnded):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "conversation_ended",
			Message: "This conversation has ended",
		})
	default:
		h.logger.Error("Request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Request failed",
		})
	}
}

// speakMessage streams TTS audio for a stored message
func (h *Handler) speakMessage(c echo.Context) error {
	if h.speech == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "tts_unavailable",
			Message: "Text-to-speech is not configured",
		})
	}

	ctx := c.Request().Context()
	msg, err := h.messageRepo.GetByID(ctx, c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to load message", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load message",
		})
	}
	if msg == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Message not found",
		})
	}

	conv, err := h.conversations.GetConversation(ctx, msg.ConversationID.Hex(), currentUserID(c))
	if err != nil {
		return h.conversationError(c, err)
	}

	voice := conv.VoiceName
	if voice == "" {
		voice = h.defaultVoice
	}

	return h.streamSpeech(c, msg.Content, voice)
}

// speakDemo streams TTS audio for arbitrary text, for trying out voices
func (h *Handler) speakDemo(c echo.Context) error {
	if h.speech == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "tts_unavailable",
			Message: "Text-to-speech is not configured",
		})
	}

	text := c.QueryParam("text")
	if text == "" {
		text = "Hello! I am your speaking practice partner. Shall we begin?"
	}

	voice := c.QueryParam("voice")
	if voice == "" {
		voice = h.defaultVoice
	}
	if !tts.IsKnownVoice(voice) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "unknown_voice",
			Message: "Unknown voice name",
		})
	}

	return h.streamSpeech(c, text, voice)
}

func (h *Handler) streamSpeech(c echo.Context, text, voice string) error {
	stream, err := h.speech.Synthesize(c.Request().Context(), repositories.SpeechRequest{
		Text:   text,
		Voice:  voice,
		Format: "mp3",
	})
	if err != nil {
		h.logger.Error("Speech synthesis failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "tts_failed",
			Message: "Speech synthesis failed",
		})
	}

	c.Response().Header().Set(echo.HeaderContentType, "audio/mpeg")
	c.Response().WriteHeader(http.StatusOK)

	for chunk := range stream {
		if _, err := c.Response().Write(chunk); err != nil {
			return nil
		}
		c.Response().Flush()
	}
	return nil
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func (h *Handler) websocketWithAuth(hub *websocket.Hub, c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		token = c.QueryParam("token")
	}

	if token == "" {
		h.logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	h.logger.Info("WebSocket connection authenticated",
		zap.String("user_id", claims.UserID))

	return websocket.HandleWebSocketWithAuth(hub, c, claims.UserID, h.logger)
}
