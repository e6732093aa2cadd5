package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/buddy/adapters"
	"github.com/satriahrh/buddy/adapters/mongo"
	"github.com/satriahrh/buddy/adapters/searchapi"
	"github.com/satriahrh/buddy/adapters/speech"
	"github.com/satriahrh/buddy/adapters/stt"
	"github.com/satriahrh/buddy/adapters/tts"
	"github.com/satriahrh/buddy/domain/repositories"
	"github.com/satriahrh/buddy/internal/api"
	"github.com/satriahrh/buddy/internal/auth"
	"github.com/satriahrh/buddy/internal/config"
	"github.com/satriahrh/buddy/internal/websocket"
	"github.com/satriahrh/buddy/usecase"
)

const (
	shutdownTimeout  = 10 * time.Second
	mockWordDuration = 150 * time.Millisecond
)

func main() {
	bootstrap, _ := zap.NewProduction()
	cfg, err := config.Load(bootstrap)
	if err != nil {
		bootstrap.Fatal("Failed to load configuration", zap.Error(err))
	}
	bootstrap.Sync()

	// Initialize logger
	logger := newLogger(cfg)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize repositories
	sessionRepo, closeArchive, err := newSessionRepository(ctx, logger)
	if err != nil {
		logger.Fatal("Failed to initialize session repository", zap.Error(err))
	}
	defer closeArchive()

	clientRepo, err := adapters.NewMemoryClientRepositoryFromCredentials(cfg.ClientCredentials)
	if err != nil {
		logger.Fatal("Failed to initialize client repository", zap.Error(err))
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Fatal("Failed to initialize token manager", zap.Error(err))
	}

	searchConfig := searchapi.NewSearchAPIConfigFromEnv()
	searchConfig.Timeout = cfg.RequestTimeout
	searchClient, err := searchapi.NewClient(searchConfig, logger)
	if err != nil {
		logger.Fatal("Failed to initialize search client", zap.Error(err))
	}

	// Initialize speech engines
	factory := &websocket.SpeechSessionFactory{
		Provider: cfg.SpeechProvider,
		Searcher: searchClient,
		Archive:  sessionRepo,
		Recognition: repositories.RecognitionConfig{
			Language:       cfg.SpeechLanguage,
			Continuous:     true,
			InterimResults: true,
		},
		Profile: usecase.VoiceProfile{
			PreferredVoice: cfg.PreferredVoice,
			Lang:           cfg.SpeechLanguage,
			Rate:           cfg.SpeechRate,
			Pitch:          cfg.SpeechPitch,
			Volume:         cfg.SpeechVolume,
		},
		Session: usecase.SessionConfig{
			RequestTimeout:          cfg.RequestTimeout,
			SubmittedNoticeDuration: cfg.SubmittedNoticeDuration,
		},
		Logger: logger,
	}
	if err := initSpeech(ctx, cfg, factory, logger); err != nil {
		logger.Fatal("Failed to initialize speech provider",
			zap.String("provider", string(cfg.SpeechProvider)),
			zap.Error(err))
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub(factory, logger)
	go hub.Run(ctx)

	cleanup := websocket.NewSessionCleanupService(sessionRepo, 0, logger)
	cleanup.Start()
	defer cleanup.Stop()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, api.Dependencies{
		Hub:       hub,
		Clients:   clientRepo,
		Tokens:    tokens,
		Resources: searchClient,
		Sessions:  sessionRepo,
		Logger:    logger,
	})

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("speechProvider", string(cfg.SpeechProvider)))

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := hub.Wait(shutdownCtx); err != nil {
		logger.Error("Sessions did not close in time", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Development() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// newSessionRepository archives to MongoDB when MONGODB_URI is set, in memory otherwise
func newSessionRepository(ctx context.Context, logger *zap.Logger) (repositories.SessionRepository, func(), error) {
	mongoConfig := mongo.NewMongoConfigFromEnv()
	if mongoConfig.URI == "" {
		logger.Info("MONGODB_URI not set, archiving conversations in memory")
		return adapters.NewMemorySessionRepository(), func() {}, nil
	}

	client, err := mongo.NewClient(ctx, mongoConfig, logger)
	if err != nil {
		return nil, nil, err
	}
	closeClient := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Error("Failed to close MongoDB client", zap.Error(err))
		}
	}

	repo, err := mongo.NewSessionRepository(ctx, client.Database, logger)
	if err != nil {
		closeClient()
		return nil, nil, err
	}
	return repo, closeClient, nil
}

// initSpeech fills the shared engines of the configured speech provider
func initSpeech(ctx context.Context, cfg *config.Config, factory *websocket.SpeechSessionFactory, logger *zap.Logger) error {
	switch cfg.SpeechProvider {
	case config.SpeechProviderHost:
		logger.Info("Relaying speech to the connected clients")
		return nil

	case config.SpeechProviderCloud:
		sttConfig := stt.NewGoogleSpeechConfigFromEnv()
		recognizer, err := stt.NewGoogleSpeechRecognizer(sttConfig, logger)
		if err != nil {
			return err
		}
		elevenLabs, err := tts.NewElevenLabsTTS(tts.NewElevenLabsConfigFromEnv(), logger)
		if err != nil {
			return err
		}

		watcher := tts.NewCatalogWatcher(elevenLabs, cfg.VoiceCatalogRefresh, logger)
		go watcher.Run(ctx)

		factory.Recognizer = recognizer
		factory.TextToSpeech = elevenLabs
		factory.AudioFormat = elevenLabs.OutputFormat()
		factory.Voices = watcher
		factory.Recognition.SampleRate = sttConfig.SampleRate
		factory.Recognition.Encoding = sttConfig.Encoding
		return nil

	case config.SpeechProviderMock:
		watcher := tts.NewCatalogWatcher(speech.NewMockVoiceCatalog(), cfg.VoiceCatalogRefresh, logger)
		watcher.Refresh(ctx)

		factory.Recognizer = speech.NewMockRecognizer("", logger)
		factory.Synthesizer = speech.NewMockSynthesizer(mockWordDuration, logger)
		factory.Voices = watcher
		logger.Info("Using scripted speech engines")
		return nil
	}
	return fmt.Errorf("unsupported speech provider %q", cfg.SpeechProvider)
}
