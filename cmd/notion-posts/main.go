// Command notion-posts serves the posts of a Notion collection page as
// JSON, cached in Redis.
//
//	GET /posts[?page=<root page id>]
//	GET /health
//	GET /metrics
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/notion-posts/pkg/cache"
	"github.com/Sternrassler/notion-posts/pkg/collection"
	"github.com/Sternrassler/notion-posts/pkg/logging"
	"github.com/Sternrassler/notion-posts/pkg/metrics"
	"github.com/Sternrassler/notion-posts/pkg/notion"
	"github.com/Sternrassler/notion-posts/pkg/posts"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// config is the process configuration read from the environment.
type config struct {
	Port            string
	NotionAPIURL    string
	NotionToken     string
	UserAgent       string
	RedisURL        string
	RedisPassword   string
	CacheTTL        time.Duration
	RootPageID      string
	AssembleTimeout time.Duration
}

func loadConfig() (config, error) {
	cfg := config{
		Port:          getEnv("PORT", "8080"),
		NotionAPIURL:  getEnv("NOTION_API_URL", "https://www.notion.so"),
		NotionToken:   getEnv("NOTION_TOKEN", ""),
		UserAgent:     getEnv("USER_AGENT", "notion-posts/0.1.0"),
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RootPageID:    getEnv("NOTION_ROOT_PAGE_ID", ""),
	}

	var err error
	if cfg.CacheTTL, err = time.ParseDuration(getEnv("CACHE_TTL", cache.DefaultTTL.String())); err != nil {
		return config{}, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	if cfg.AssembleTimeout, err = time.ParseDuration(getEnv("ASSEMBLE_TIMEOUT", "10m")); err != nil {
		return config{}, fmt.Errorf("invalid ASSEMBLE_TIMEOUT: %w", err)
	}
	return cfg, nil
}

// redisOptions accepts a redis:// URL or a plain host:port address.
func redisOptions(cfg config) (*redis.Options, error) {
	if strings.Contains(cfg.RedisURL, "://") {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		if cfg.RedisPassword != "" {
			opts.Password = cfg.RedisPassword
		}
		return opts, nil
	}
	return &redis.Options{Addr: cfg.RedisURL, Password: cfg.RedisPassword}, nil
}

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	logging.Setup(logging.ConfigFromEnv(nil))
	logger := logging.NewLogger("notion-posts")

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	opts, err := redisOptions(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("redis", opts.Addr).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("redis", opts.Addr).Msg("Connected to Redis")

	notionCfg := notion.DefaultConfig(cfg.UserAgent)
	notionCfg.BaseURL = cfg.NotionAPIURL
	notionCfg.Token = cfg.NotionToken
	notionClient, err := notion.New(notionCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Notion client")
	}

	assembler, err := posts.NewAssembler(
		notionClient,
		posts.EnumeratorFunc(collection.PageIDs),
		collection.NewExtractor(),
		posts.DefaultConfig(),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create post assembler")
	}

	srv := newServer(assembler, cache.NewPostsCache(cache.NewManager(redisClient), cfg.CacheTTL), cfg, logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", httpServer.Addr).
		Str("user_agent", cfg.UserAgent).
		Str("root_page_id", cfg.RootPageID).
		Dur("cache_ttl", cfg.CacheTTL).
		Msg("Starting Notion posts server")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}

// postAssembler is the part of posts.Assembler the server needs.
type postAssembler interface {
	Assemble(ctx context.Context, rootPageID string) []posts.Post
}

type server struct {
	assembler postAssembler
	cache     *cache.PostsCache
	cfg       config
	logger    zerolog.Logger
}

func newServer(assembler postAssembler, postsCache *cache.PostsCache, cfg config, logger zerolog.Logger) *server {
	return &server{
		assembler: assembler,
		cache:     postsCache,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/posts", s.postsHandler)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *server) postsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rootPageID := strings.TrimSpace(r.URL.Query().Get("page"))
	if rootPageID == "" {
		rootPageID = s.cfg.RootPageID
	}
	if rootPageID == "" {
		http.Error(w, "missing page parameter and no NOTION_ROOT_PAGE_ID configured", http.StatusBadRequest)
		return
	}

	logger := s.logger.With().Str("root_page_id", rootPageID).Logger()

	_, entry, err := s.cache.Get(r.Context(), rootPageID)
	switch {
	case err == nil:
		w.Header().Set("X-Cache", "HIT")
	case errors.Is(err, cache.ErrCacheMiss):
		w.Header().Set("X-Cache", "MISS")
	default:
		// Redis trouble must not take the posts down with it.
		logger.Warn().Err(err).Msg("Cache read failed - assembling")
		w.Header().Set("X-Cache", "MISS")
	}

	if entry == nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AssembleTimeout)
		list := s.assembler.Assemble(ctx, rootPageID)
		cancel()

		entry, err = s.cache.Put(r.Context(), rootPageID, list)
		switch {
		case errors.Is(err, cache.ErrEmptyPosts):
			// Empty means unavailable; let clients retry right away.
			w.Header().Set("Cache-Control", "no-store")
			writeJSON(w, r, entry.Data)
			return
		case err != nil && entry == nil:
			logger.Error().Err(err).Msg("Failed to encode posts")
			http.Error(w, "failed to encode posts", http.StatusInternalServerError)
			return
		case err != nil:
			logger.Warn().Err(err).Msg("Cache write failed")
		}
	}

	cache.WriteHeaders(w, entry)
	if cache.NotModified(r, entry) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, r, entry.Data)
}

func writeJSON(w http.ResponseWriter, r *http.Request, data []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(data); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
