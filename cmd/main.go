package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/speakai/server/adapters/llm"
	"github.com/speakai/server/adapters/memory"
	mongodb "github.com/speakai/server/adapters/mongo"
	"github.com/speakai/server/adapters/storage"
	"github.com/speakai/server/adapters/stt"
	speech "github.com/speakai/server/adapters/tts"
	"github.com/speakai/server/domain/repositories"
	"github.com/speakai/server/internal/api"
	"github.com/speakai/server/internal/auth"
	"github.com/speakai/server/internal/config"
	"github.com/speakai/server/internal/websocket"
	"github.com/speakai/server/usecase"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx := context.Background()

	// Record repositories: MongoDB when configured, in-memory otherwise
	var (
		audioRepo    repositories.AudioRepository
		messageRepo  repositories.MessageRepository
		convRepo     repositories.ConversationRepository
		feedbackRepo repositories.FeedbackRepository
		userRepo     repositories.UserRepository
		mistakeRepo  repositories.MistakeRepository
	)
	if cfg.UseMongo() {
		client, err := mongodb.NewClient(cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			logger.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer client.Close(ctx)

		audioRepo = mongodb.NewAudioRepository(client.Database)
		messageRepo = mongodb.NewMessageRepository(client.Database)
		convRepo = mongodb.NewConversationRepository(client.Database)
		feedbackRepo = mongodb.NewFeedbackRepository(client.Database)
		userRepo = mongodb.NewUserRepository(client.Database)
		mistakeRepo = mongodb.NewMistakeRepository(client.Database)
	} else {
		logger.Warn("MONGODB_URI not set, using in-memory storage")
		records := memory.NewRecords()
		audioRepo = records.Audio()
		messageRepo = records.Messages()
		convRepo = records.Conversations()
		feedbackRepo = records.Feedback()
		userRepo = records.Users()
		mistakeRepo = records.Mistakes()
	}

	store, err := storage.NewLocalAudioStore(cfg.UploadDir, logger)
	if err != nil {
		logger.Fatal("failed to prepare upload directory", zap.Error(err))
	}

	transcriber := buildTranscriptionChain(cfg, logger)
	model := buildLanguageModel(ctx, cfg, logger)
	tts := buildSpeechService(cfg, logger)

	// Usecase services
	feedbackService := usecase.NewFeedbackService(model, logger)
	mistakeService := usecase.NewMistakeService(mistakeRepo, logger)
	audioService := usecase.NewAudioService(store, audioRepo, feedbackRepo, transcriber, feedbackService,
		mistakeService, cfg.MaxUploadSize, logger)
	conversationService := usecase.NewConversationService(convRepo, messageRepo, audioRepo, feedbackRepo,
		feedbackService, mistakeService, model, logger)
	userService := usecase.NewUserService(userRepo, logger)

	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.TokenExpiry)
	if err != nil {
		logger.Fatal("failed to initialize token manager", zap.Error(err))
	}

	hub := websocket.NewHub(transcriber, feedbackService, tts, cfg.TTSVoice, logger)
	go hub.Run()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	handler := api.NewHandler(userService, audioService, conversationService, mistakeService,
		feedbackRepo, messageRepo, tokens, tts, cfg.TTSVoice, logger)
	api.InitRoutes(e, handler, hub)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

// buildTranscriptionChain assembles the speech recognition fallback chain
// from whatever backends are configured. With none, a mock recognizer keeps
// development runs working.
func buildTranscriptionChain(cfg *config.Config, logger *zap.Logger) *stt.Chain {
	var backends []repositories.Transcriber

	if cfg.WhisperBinaryPath != "" && cfg.WhisperModelPath != "" {
		backends = append(backends, stt.NewWhisperCPP(cfg.WhisperBinaryPath, cfg.WhisperModelPath, logger))
	}
	if cfg.OpenAIAPIKey != "" {
		backend, err := stt.NewOpenAIWhisper(cfg.OpenAIAPIKey, logger)
		if err != nil {
			logger.Warn("OpenAI transcription disabled", zap.Error(err))
		} else {
			backends = append(backends, backend)
		}
	}
	if cfg.GoogleSpeechEnabled {
		backends = append(backends, stt.NewGoogleSpeech(logger))
	}

	if len(backends) == 0 {
		logger.Warn("no transcription backends configured, using mock recognizer")
		backends = append(backends, stt.NewMockTranscriber(logger))
	}

	return stt.NewChain(logger, backends...)
}

func buildLanguageModel(ctx context.Context, cfg *config.Config, logger *zap.Logger) repositories.LanguageModel {
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, using mock language model")
		return llm.NewMockLanguageModel()
	}

	model, err := llm.NewGemini(ctx, llm.GeminiConfig{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	}, logger)
	if err != nil {
		logger.Warn("Gemini unavailable, using mock language model", zap.Error(err))
		return llm.NewMockLanguageModel()
	}
	return model
}

func buildSpeechService(cfg *config.Config, logger *zap.Logger) repositories.TextToSpeech {
	kokoroCfg := speech.NewKokoroConfigFromEnv()
	kokoroCfg.BaseURL = cfg.TTSBaseURL
	kokoroCfg.Voice = cfg.TTSVoice

	tts, err := speech.NewKokoroTTS(kokoroCfg, logger)
	if err != nil {
		logger.Warn("text-to-speech disabled", zap.Error(err))
		return nil
	}
	return tts
}
