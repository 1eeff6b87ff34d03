package lib

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/uvensys/captchify"
	"github.com/uvensys/captchify/internal"
	"github.com/uvensys/captchify/lib/challenge"
	"github.com/uvensys/captchify/lib/ratelimit"
	"github.com/uvensys/captchify/lib/store"
	"github.com/uvensys/captchify/lib/store/memory"
	"github.com/uvensys/captchify/lib/token"
	"github.com/uvensys/captchify/web"
)

type Options struct {
	// SecretKey derives challenge prefixes and is the default token
	// signing key. When nil, a random key is generated at startup and
	// every outstanding challenge and token dies with the process.
	SecretKey []byte

	// SigningKey, when set, is used only for token signing.
	SigningKey []byte

	// Store holds challenge state. Defaults to the in-memory backend.
	Store store.Interface

	// Limiter gates requests per origin. Defaults to a fixed resetting
	// window; pass a ratelimit.SlidingWindow to opt out of the boundary
	// burst.
	Limiter ratelimit.Limiter

	Difficulty   int
	ChallengeTTL time.Duration
	TokenTTL     time.Duration
	RateLimit    int
	RateWindow   time.Duration

	// ServeUI mounts the embedded demo page and client assets.
	ServeUI bool
}

func (o *Options) withDefaults(ctx context.Context) error {
	if o.Difficulty == 0 {
		o.Difficulty = captchify.DefaultDifficulty
	}
	if o.ChallengeTTL == 0 {
		o.ChallengeTTL = captchify.ChallengeTTL
	}
	if o.TokenTTL == 0 {
		o.TokenTTL = captchify.TokenTTL
	}
	if o.RateLimit == 0 {
		o.RateLimit = captchify.RateLimit
	}
	if o.RateWindow == 0 {
		o.RateWindow = captchify.RateWindow
	}

	if o.SecretKey == nil {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		o.SecretKey = key
		slog.Warn("no secret key configured, generated an ephemeral one: all outstanding challenges and tokens will be invalidated when this process restarts")
	}

	if o.SigningKey == nil {
		o.SigningKey = o.SecretKey
	}

	if o.Store == nil {
		o.Store = memory.New(ctx)
	}

	if o.Limiter == nil {
		o.Limiter = ratelimit.NewFixedWindow(o.RateLimit, o.RateWindow)
	}

	return nil
}

// New constructs the gateway server. The context bounds the lifetime of the
// default store's sweep goroutine.
func New(ctx context.Context, opts Options) (*Server, error) {
	if err := opts.withDefaults(ctx); err != nil {
		return nil, err
	}

	s := &Server{
		registry: challenge.NewRegistry(opts.Store, opts.SecretKey, opts.Difficulty, opts.ChallengeTTL),
		limiter:  opts.Limiter,
		issuer:   token.NewIssuer(opts.SigningKey, opts.TokenTTL),
		opts:     opts,
	}

	mux := http.NewServeMux()

	mux.Handle("GET "+captchify.APIPrefix+"init", internal.NoStoreCache(http.HandlerFunc(s.Init)))
	mux.Handle("POST "+captchify.APIPrefix+"verify", internal.NoStoreCache(http.HandlerFunc(s.Verify)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	if opts.ServeUI {
		mux.Handle("GET "+captchify.StaticPath, internal.UnchangingCache(internal.GzipMiddleware(1, http.FileServerFS(web.Static))))
		mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFileFS(w, r, web.Static, "index.html")
		})
	}

	s.mux = mux

	return s, nil
}
