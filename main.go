package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"voicekit/core"
	"voicekit/factories"
	consolehandler "voicekit/handlers/console"
	sourcehandler "voicekit/handlers/source"
	vadhandler "voicekit/handlers/vad"
	"voicekit/runner"
	"voicekit/source"
	"voicekit/vad"
)

func main() {
	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Warn("No .env.local file found or failed to load")
	}

	settingsPath := getEnv("SETTINGS_PATH", "./settings.json")
	settings, err := factories.SettingsConfigFromFile(settingsPath)
	if err != nil {
		core.GetLogger().With(map[string]any{"path": settingsPath, "error": err}).Warn("failed to load settings, using defaults")
		settings = factories.DefaultSettingsConfig()
	}
	settings.Handler.ModelPath = getEnv("SILERO_MODEL_PATH", settings.Handler.ModelPath)
	settings.Iterator.OnnxRuntimePath = getEnv("ONNX_RUNTIME_PATH", settings.Iterator.OnnxRuntimePath)

	logger := core.GetLogger()
	sessionID := uuid.New().String()

	var sessionWriter *core.SessionLogWriter
	if settings.LogDir != "" {
		sessionWriter, err = core.NewSessionLogWriter(settings.LogDir, sessionID)
		if err != nil {
			logger.With(map[string]any{"error": err}).Warn("session log disabled")
		} else {
			logger = core.NewSessionLogger(logger, sessionWriter)
			defer sessionWriter.Close()
		}
	}
	logger = logger.With(map[string]any{"session": sessionID})

	iterator, err := vad.NewIterator(settings.Iterator)
	if err != nil {
		logger.Fatalf("invalid VAD config: %v", err)
	}

	mic, err := source.NewMicSource(settings.Source, logger)
	if err != nil {
		logger.Fatalf("microphone setup failed: %v", err)
	}

	srcHandler := sourcehandler.NewSourceHandler(mic, logger)
	vHandler := vadhandler.NewVADHandler(iterator, settings.Handler, logger)
	if sessionWriter != nil {
		vHandler.SetTraceWriter(sessionWriter)
	}
	sink := consolehandler.NewConsoleHandler(logger, settings.UtteranceDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Source → VAD → Console
	r := runner.NewRunner([]core.IHandler{srcHandler, vHandler, sink}, logger)
	if err := r.Start(ctx); err != nil {
		logger.Fatalf("pipeline start failed: %v", err)
	}
	logger.Info("listening; speak into the microphone, ctrl+c to exit")

	select {
	case <-ctx.Done():
	case <-r.Done():
	}

	if err := r.Stop(); err != nil {
		logger.With(map[string]any{"error": err}).Warn("pipeline stop reported errors")
	}
	logger.Info("shut down")
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
