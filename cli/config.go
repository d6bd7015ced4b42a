package cli

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/becomeliminal/nim-recall/engine"
	"github.com/becomeliminal/nim-recall/logging"
	"github.com/becomeliminal/nim-recall/memory"
	"github.com/becomeliminal/nim-recall/memory/embedder/cache"
	"github.com/becomeliminal/nim-recall/memory/embedder/gemini"
	"github.com/becomeliminal/nim-recall/memory/embedder/mock"
	"github.com/becomeliminal/nim-recall/memory/store/chromem"
)

// config holds configuration values
type config struct {
	logLevel string

	// Store
	topK         int64
	timezone     string
	dateKeywords string

	// Embedder
	embedder      string
	dimensions    int64
	cacheBytes    int64
	onnxModel     string
	onnxTokenizer string
	onnxLibrary   string

	// Answerer
	answerer         string
	model            string
	anthropicAPIKey  string
	geminiProject    string
	geminiLocation   string
	geminiAPIKey     string
	openRouterAPIKey string
	openRouterURL    string
	breakerFailures  int64
	breakerTimeout   time.Duration
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Aliases:     []string{"l"},
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("NIM_RECALL_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Usage:       "Number of memories retrieved per question",
			Value:       3,
			Sources:     cli.EnvVars("NIM_RECALL_TOP_K"),
			Destination: &cfg.topK,
		},
		&cli.StringFlag{
			Name:        "timezone",
			Usage:       "IANA time zone used to resolve words like 'yesterday'",
			Value:       "UTC",
			Sources:     cli.EnvVars("NIM_RECALL_TIMEZONE"),
			Destination: &cfg.timezone,
		},
		&cli.StringFlag{
			Name:        "date-keywords",
			Usage:       "YAML file of relative-date keywords (replaces the built-in table)",
			Sources:     cli.EnvVars("NIM_RECALL_DATE_KEYWORDS"),
			Destination: &cfg.dateKeywords,
		},
	}
}

// embedderFlags returns flags selecting and configuring the embedder
func embedderFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedder",
			Aliases:     []string{"e"},
			Usage:       "Embedder: hash, gemini or onnx",
			Value:       "hash",
			Sources:     cli.EnvVars("NIM_RECALL_EMBEDDER"),
			Destination: &cfg.embedder,
		},
		&cli.IntFlag{
			Name:        "dimensions",
			Usage:       "Embedding dimensions",
			Value:       768,
			Sources:     cli.EnvVars("NIM_RECALL_DIMENSIONS"),
			Destination: &cfg.dimensions,
		},
		&cli.IntFlag{
			Name:        "embed-cache-bytes",
			Usage:       "Embedding cache size in bytes, 0 disables the cache",
			Value:       cache.DefaultMaxBytes,
			Sources:     cli.EnvVars("NIM_RECALL_EMBED_CACHE_BYTES"),
			Destination: &cfg.cacheBytes,
		},
		&cli.StringFlag{
			Name:        "onnx-model",
			Usage:       "Path to the ONNX sentence-transformer model",
			Sources:     cli.EnvVars("NIM_RECALL_ONNX_MODEL"),
			Destination: &cfg.onnxModel,
		},
		&cli.StringFlag{
			Name:        "onnx-tokenizer",
			Usage:       "Path to tokenizer.json for the ONNX model",
			Sources:     cli.EnvVars("NIM_RECALL_ONNX_TOKENIZER"),
			Destination: &cfg.onnxTokenizer,
		},
		&cli.StringFlag{
			Name:        "onnx-library",
			Usage:       "Path to the onnxruntime shared library",
			Sources:     cli.EnvVars("ONNXRUNTIME_LIB"),
			Destination: &cfg.onnxLibrary,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "answerer",
			Aliases:     []string{"a"},
			Usage:       "Answer model provider: claude, gemini, openrouter or none",
			Value:       "claude",
			Sources:     cli.EnvVars("NIM_RECALL_ANSWERER"),
			Destination: &cfg.answerer,
		},
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Model name, defaults per provider",
			Sources:     cli.EnvVars("NIM_RECALL_MODEL"),
			Destination: &cfg.model,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key, used instead of Vertex AI when set",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openrouter-api-key",
			Usage:       "OpenRouter API key",
			Sources:     cli.EnvVars("OPENROUTER_API_KEY"),
			Destination: &cfg.openRouterAPIKey,
		},
		&cli.StringFlag{
			Name:        "openrouter-url",
			Usage:       "OpenAI-compatible base URL",
			Value:       engine.DefaultOpenRouterURL,
			Sources:     cli.EnvVars("OPENROUTER_BASE_URL"),
			Destination: &cfg.openRouterURL,
		},
		&cli.IntFlag{
			Name:        "breaker-failures",
			Usage:       "Consecutive model failures before the circuit opens",
			Value:       3,
			Sources:     cli.EnvVars("NIM_RECALL_BREAKER_FAILURES"),
			Destination: &cfg.breakerFailures,
		},
		&cli.DurationFlag{
			Name:        "breaker-timeout",
			Usage:       "How long the circuit stays open",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("NIM_RECALL_BREAKER_TIMEOUT"),
			Destination: &cfg.breakerTimeout,
		},
	}
}

// setupLogger installs the configured logger as default and in ctx.
func (cfg *config) setupLogger(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newEmbedder creates the configured embedder. The returned cleanup must
// be called when the embedder is no longer used.
func (cfg *config) newEmbedder(ctx context.Context) (memory.Embedder, func(), error) {
	var (
		base    memory.Embedder
		cleanup = func() {}
	)

	switch strings.ToLower(cfg.embedder) {
	case "hash", "mock", "":
		base = mock.New(mock.WithDimensions(int(cfg.dimensions)))

	case "gemini":
		e, err := gemini.New(ctx, gemini.Config{
			Project:    cfg.geminiProject,
			Location:   cfg.geminiLocation,
			APIKey:     cfg.geminiAPIKey,
			Dimensions: int(cfg.dimensions),
		})
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create gemini embedder")
		}
		base = e

	case "onnx":
		e, closeFn, err := cfg.newONNXEmbedder()
		if err != nil {
			return nil, nil, err
		}
		base, cleanup = e, closeFn

	default:
		return nil, nil, goerr.New("unknown embedder", goerr.V("embedder", cfg.embedder))
	}

	if cfg.cacheBytes <= 0 {
		return base, cleanup, nil
	}

	cached, err := cache.New(base, cache.WithMaxBytes(cfg.cacheBytes))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return cached, func() {
		cached.Close()
		cleanup()
	}, nil
}

// newStore creates an empty store over the configured embedder.
func (cfg *config) newStore(ctx context.Context) (*memory.Store, func(), error) {
	loc, err := time.LoadLocation(cfg.timezone)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "invalid timezone", goerr.V("timezone", cfg.timezone))
	}

	policy := memory.DefaultDatePolicy()
	if cfg.dateKeywords != "" {
		keywords, err := memory.LoadKeywords(cfg.dateKeywords)
		if err != nil {
			return nil, nil, err
		}
		policy = memory.NewKeywordPolicy(keywords)
	}

	embedder, cleanup, err := cfg.newEmbedder(ctx)
	if err != nil {
		return nil, nil, err
	}

	index, err := chromem.New()
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	store, err := memory.New(embedder, index,
		memory.WithDatePolicy(policy),
		memory.WithConfig(memory.Config{
			DefaultTopK: int(cfg.topK),
			Location:    loc,
		}),
	)
	if err != nil {
		cleanup()
		return nil, nil, goerr.Wrap(err, "failed to create memory store")
	}

	logging.From(ctx).Info("memory store ready",
		"embedder", cfg.embedder,
		"dimensions", embedder.Dimensions(),
		"top_k", store.DefaultTopK(),
	)

	return store, func() {
		_ = store.Close()
		cleanup()
	}, nil
}

// newAnswerer creates the configured answer model behind a circuit breaker.
func (cfg *config) newAnswerer(ctx context.Context) (*engine.Breaker, error) {
	opts := engine.Options{Model: cfg.model}

	var inner memory.Answerer
	switch strings.ToLower(cfg.answerer) {
	case "claude":
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required")
		}
		inner = engine.NewClaude(cfg.anthropicAPIKey, opts)

	case "gemini":
		g, err := engine.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, cfg.geminiAPIKey, opts)
		if err != nil {
			return nil, err
		}
		inner = g

	case "openrouter":
		if cfg.openRouterAPIKey == "" {
			return nil, goerr.New("openrouter-api-key is required")
		}
		inner = engine.NewOpenAICompat(cfg.openRouterURL, cfg.openRouterAPIKey, nil, opts)

	case "none":
		logging.From(ctx).Warn("no answer model configured, questions will fail as unavailable")

	default:
		return nil, goerr.New("unknown answerer", goerr.V("answerer", cfg.answerer))
	}

	return engine.NewBreaker(inner, engine.BreakerConfig{
		MaxFailures: uint32(cfg.breakerFailures),
		Timeout:     cfg.breakerTimeout,
	}), nil
}

// newManager wires store and answerer together.
func (cfg *config) newManager(ctx context.Context) (*memory.Manager, *engine.Breaker, func(), error) {
	store, cleanup, err := cfg.newStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	breaker, err := cfg.newAnswerer(ctx)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	mgr, err := memory.NewManager(store, breaker)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return mgr, breaker, cleanup, nil
}
