package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/NightStrang6r/FunPayVertex/internal/bot"
	"github.com/NightStrang6r/FunPayVertex/internal/config"
	"github.com/NightStrang6r/FunPayVertex/internal/funpay"
	"github.com/NightStrang6r/FunPayVertex/internal/goods"
	"github.com/NightStrang6r/FunPayVertex/internal/handlers"
	"github.com/NightStrang6r/FunPayVertex/internal/llm"
	"github.com/NightStrang6r/FunPayVertex/internal/runner"
	"github.com/NightStrang6r/FunPayVertex/internal/scheduler"
	"github.com/NightStrang6r/FunPayVertex/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.Environment)
	logger.Info().
		Str("environment", cfg.Environment).
		Str("timezone", cfg.Timezone).
		Int("poll_interval", cfg.PollInterval).
		Bool("auto_raise", cfg.AutoRaise).
		Bool("telegram_enabled", cfg.TelegramEnabled()).
		Bool("supabase_enabled", cfg.SupabaseEnabled()).
		Bool("gemini_enabled", cfg.GeminiEnabled()).
		Msg("Starting FunPayVertex")

	// Create context that listens for termination signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize FunPay client and log in
	logger.Info().Msg("Logging in to FunPay...")
	client := funpay.NewClient(
		cfg.GoldenKey,
		cfg.UserAgent,
		time.Duration(cfg.RequestTimeout)*time.Second,
		logger,
	)
	if err := client.Login(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to log in, check FUNPAY_GOLDEN_KEY")
	}
	sales, purchases := client.ActiveCounters()
	logger.Info().
		Str("username", client.Username()).
		Int64("user_id", client.UserID()).
		Int("active_sales", sales).
		Int("active_purchases", purchases).
		Msg("Logged in")

	// Initialize the change detector
	rnr := runner.New(client, runner.Options{
		PollInterval:           time.Duration(cfg.PollInterval) * time.Second,
		DisableMessageRequests: cfg.DisableMessageRequests,
		DisableOrderRequests:   cfg.DisableOrderRequests,
		ResumeOnError:          cfg.ResumeOnError,
	}, logger)
	client.SetSentHook(rnr)

	// Initialize goods store
	store, err := goods.NewStore(cfg.GoodsDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open goods store")
	}

	// Load rule files
	rules, err := handlers.LoadRules(cfg.AutoResponseFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load auto-response rules")
	}
	delivery, err := handlers.LoadDeliveryRules(cfg.AutoDeliveryFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load auto-delivery rules")
	}
	logger.Info().
		Int("auto_response_rules", rules.Len()).
		Int("auto_delivery_rules", delivery.Len()).
		Msg("Rule files loaded")

	env := &handlers.Env{
		Client: client,
		Runner: rnr,
		Config: cfg,
		Goods:  store,
		Logger: logger,
	}

	// Initialize optional Supabase archive
	if cfg.SupabaseEnabled() {
		logger.Info().Msg("Initializing Supabase client...")
		storageClient, err := storage.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseTimeout, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create storage client")
		}
		if err := storageClient.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Supabase")
		}
		logger.Info().Msg("Supabase connection successful")
		env.Archive = storageClient
	}

	// Initialize optional Gemini fallback
	if cfg.GeminiEnabled() {
		logger.Info().Msg("Initializing Gemini LLM client...")
		llmClient := llm.NewClient(cfg.GeminiAPIKey, cfg.GeminiTimeout, logger)
		defer func() {
			if err := llmClient.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close LLM client")
			}
		}()
		env.Responder = llmClient
	}

	// Initialize optional Telegram bot
	var telegramBot *bot.Bot
	if cfg.TelegramEnabled() {
		logger.Info().Msg("Initializing Telegram bot...")
		telegramBot, err = bot.New(cfg, client, store, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create bot")
		}
		env.Notifier = telegramBot
		go func() {
			if err := telegramBot.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("Telegram bot stopped with error")
			}
		}()
	}

	// Register the rule layer
	registry := handlers.NewRegistry(logger)
	handlers.RegisterBuiltins(env, registry, rules, delivery)

	// Start scheduler (session refresh, optional lot raising)
	sched, err := scheduler.NewScheduler(client, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	go func() {
		if err := sched.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("Scheduler stopped with error")
		}
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start polling and dispatching
	events := rnr.Listen(ctx)
	dispatchDone := make(chan struct{})
	go func() {
		registry.Run(ctx, events)
		close(dispatchDone)
	}()

	logger.Info().Msg("FunPayVertex is running. Press Ctrl+C to stop.")

	// Wait for termination signal or runner exit
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received termination signal")
	case <-dispatchDone:
		logger.Error().Msg("Event stream closed")
	}

	// Graceful shutdown
	logger.Info().Msg("Initiating graceful shutdown...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		<-dispatchDone
		env.Wait() // drain in-flight replies and deliveries
		if telegramBot != nil {
			telegramBot.Stop()
		}
		close(done)
	}()

	// Wait for shutdown or timeout
	select {
	case <-shutdownCtx.Done():
		logger.Warn().Msg("Shutdown timeout exceeded, some actions may be lost")
	case <-done:
		logger.Info().Msg("Graceful shutdown completed")
	}

	logger.Info().Msg("FunPayVertex stopped")
}

// setupLogger configures and returns a zerolog logger
func setupLogger(level, environment string) zerolog.Logger {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// Configure output format
	var logger zerolog.Logger
	if environment == "development" {
		// Pretty console output for development
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Caller().Logger()
	} else {
		// JSON output for production
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	return logger
}
