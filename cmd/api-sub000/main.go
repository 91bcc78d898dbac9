package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Osangy/api-sub000/internal/api"
	"github.com/Osangy/api-sub000/internal/cart"
	"github.com/Osangy/api-sub000/internal/dialogue"
	"github.com/Osangy/api-sub000/internal/flow"
	"github.com/Osangy/api-sub000/internal/flowstore"
	"github.com/Osangy/api-sub000/internal/lockfile"
	"github.com/Osangy/api-sub000/internal/messaging"
	"github.com/Osangy/api-sub000/internal/nlu"
	"github.com/Osangy/api-sub000/internal/notify"
	"github.com/Osangy/api-sub000/internal/store"
	"github.com/Osangy/api-sub000/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for bot state data
	DefaultStateDir = "/var/lib/api-sub000"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "bot.db"
	// shutdownTimeout bounds the graceful shutdown on SIGTERM
	shutdownTimeout = 15 * time.Second
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping bot with configured modules")
	if err := run(flags); err != nil {
		slog.Error("Bot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Bot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	RedisAddr   string
	RedisPass   string
	RedisDB     int
	OpenAIKey   string
	OpenAIModel string
	PageToken   string
	VerifyToken string
	APIAddr     string
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	redisAddr   *string
	redisPass   *string
	redisDB     *int
	openaiKey   *string
	openaiModel *string
	pageToken   *string
	verifyToken *string
	apiAddr     *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    util.GetEnv("STATE_DIR", DefaultStateDir),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		RedisPass:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:     util.ParseIntEnv("REDIS_DB", 0),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),
		PageToken:   os.Getenv("FB_PAGE_ACCESS_TOKEN"),
		VerifyToken: os.Getenv("FB_VERIFY_TOKEN"),
		APIAddr:     os.Getenv("API_ADDR"),
	}

	// Default to SQLite in the state directory when no database URL is set
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"STATE_DIR", config.StateDir,
		"REDIS_ADDR", config.RedisAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"FB_PAGE_ACCESS_TOKEN_SET", config.PageToken != "",
		"FB_VERIFY_TOKEN_SET", config.VerifyToken != "",
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for bot data (overrides $STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the catalog store (overrides $DATABASE_URL)"),
		redisAddr:   flag.String("redis-addr", config.RedisAddr, "Redis address for flow state (overrides $REDIS_ADDR)"),
		redisPass:   flag.String("redis-password", config.RedisPass, "Redis password (overrides $REDIS_PASSWORD)"),
		redisDB:     flag.Int("redis-db", config.RedisDB, "Redis database number (overrides $REDIS_DB)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel: flag.String("openai-model", config.OpenAIModel, "OpenAI model name (overrides $OPENAI_MODEL)"),
		pageToken:   flag.String("page-token", config.PageToken, "Facebook page access token (overrides $FB_PAGE_ACCESS_TOKEN)"),
		verifyToken: flag.String("verify-token", config.VerifyToken, "webhook verify token (overrides $FB_VERIFY_TOKEN)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"redisAddr", *flags.redisAddr,
		"openaiKeySet", *flags.openaiKey != "",
		"pageTokenSet", *flags.pageToken != "",
		"apiAddr", *flags.apiAddr)

	return flags
}

// ensureDirectoriesExist creates the state directory for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
		slog.Debug("State directory ready", "state_dir", stateDir)
	}
	return nil
}

// run wires all components together and serves until a shutdown signal.
func run(flags Flags) error {
	ctx := context.Background()

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.NewStore(store.WithDSN(*flags.dbDSN))
	if err != nil {
		return err
	}
	defer st.Close()

	var flows flowstore.Repository
	if *flags.redisAddr != "" {
		redisStore, err := flowstore.NewRedisStore(ctx,
			flowstore.WithAddr(*flags.redisAddr),
			flowstore.WithPassword(*flags.redisPass),
			flowstore.WithDB(*flags.redisDB),
		)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		flows = redisStore
	} else {
		slog.Warn("No Redis address configured, flow state is in-memory and lost on restart")
		flows = flowstore.NewMemoryStore()
	}

	messenger, err := messaging.NewMessengerClient(messaging.WithAccessToken(*flags.pageToken))
	if err != nil {
		return err
	}

	var agentOpts []nlu.Option
	if *flags.openaiKey != "" {
		agentOpts = append(agentOpts, nlu.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		agentOpts = append(agentOpts, nlu.WithModel(*flags.openaiModel))
	}
	agent, err := nlu.NewOpenAIAgent(agentOpts...)
	if err != nil {
		return err
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if os.Getenv("TWILIO_ACCOUNT_SID") != "" {
		twilioNotifier, err := notify.NewTwilioNotifier()
		if err != nil {
			return err
		}
		notifier = twilioNotifier
	}

	mutator := cart.NewMutator(st, st, messenger)
	engine := flow.NewEngine(flows, st, messenger, mutator)
	presenter := dialogue.NewPresenter(st, messenger)
	router := dialogue.NewRouter(st, messenger, presenter)
	dispatcher := dialogue.NewDispatcher(engine, agent, st, router)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	apiOpts = append(apiOpts, api.WithVerifyToken(*flags.verifyToken))

	server, err := api.NewServer(st, dispatcher, engine, messenger, messenger, notifier, apiOpts...)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
