// Command captchify runs the anti-automation gateway: it issues proof of
// work challenges, scores reported interaction telemetry, and mints signed
// access tokens for downstream services to verify.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/facebookgo/flagenv"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uvensys/captchify"
	"github.com/uvensys/captchify/internal"
	libcaptchify "github.com/uvensys/captchify/lib"
)

var (
	bind                = flag.String("bind", ":8923", "network address to bind HTTP to")
	bindNetwork         = flag.String("bind-network", "tcp", "network family to bind HTTP to, e.g. unix, tcp")
	challengeDifficulty = flag.Int("difficulty", captchify.DefaultDifficulty, "leading zero bits a proof of work solution must reach")
	challengeTTL        = flag.Duration("challenge-ttl", captchify.ChallengeTTL, "how long an issued challenge stays solvable")
	tokenTTL            = flag.Duration("token-ttl", captchify.TokenTTL, "how long minted access tokens are valid")
	rateLimit           = flag.Int("rate-limit", captchify.RateLimit, "requests allowed per origin per rate window")
	rateWindow          = flag.Duration("rate-window", captchify.RateWindow, "length of the per-origin rate window")
	appSecret           = flag.String("app-secret", "", "secret for challenge prefix derivation and default token signing, generated at random when unset")
	jwtSecret           = flag.String("jwt-secret", "", "dedicated token signing secret, defaults to app-secret")
	metricsBind         = flag.String("metrics-bind", ":9090", "network address to bind metrics to")
	metricsBindNetwork  = flag.String("metrics-bind-network", "tcp", "network family for the metrics server to bind to")
	serveUI             = flag.Bool("serve-ui", true, "serve the embedded demo page and client assets")
	slogLevel           = flag.String("slog-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	useRemoteAddress    = flag.Bool("use-remote-address", false, "read the client's IP address from the network request, useful when not behind a proxy")
	healthcheck         = flag.Bool("healthcheck", false, "run a health check against captchify")
	versionFlag         = flag.Bool("version", false, "print captchify version")
)

func doHealthCheck() error {
	resp, err := http.Get("http://localhost" + *bind + "/healthz")
	if err != nil {
		return fmt.Errorf("failed to fetch healthz: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// parseBindNetFromAddr determines bind network and address based on the given address.
func parseBindNetFromAddr(address string) (string, string) {
	defaultScheme := "http://"
	if !strings.Contains(address, "://") {
		if strings.HasPrefix(address, ":") {
			address = defaultScheme + "localhost" + address
		} else {
			address = defaultScheme + address
		}
	}

	bindUri, err := url.Parse(address)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to parse bind URL: %w", err))
	}

	switch bindUri.Scheme {
	case "unix":
		return "unix", bindUri.Path
	case "tcp", "http", "https":
		return "tcp", bindUri.Host
	default:
		log.Fatal(fmt.Errorf("unsupported network scheme %s in address %s", bindUri.Scheme, address))
	}
	return "", address
}

func setupListener(network string, address string) (net.Listener, string) {
	formattedAddress := ""

	if network == "" {
		network, address = parseBindNetFromAddr(address)
	}

	switch network {
	case "unix":
		formattedAddress = "unix:" + address
	case "tcp":
		if strings.HasPrefix(address, ":") { // assume it's just a port e.g. :4259
			formattedAddress = "http://localhost" + address
		} else {
			formattedAddress = "http://" + address
		}
	default:
		formattedAddress = fmt.Sprintf(`(%s) %s`, network, address)
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to bind to %s: %w", formattedAddress, err))
	}

	return listener, formattedAddress
}

func main() {
	flagenv.Parse()
	flag.Parse()

	if *versionFlag {
		fmt.Println("captchify", captchify.Version)
		return
	}

	internal.InitSlog(*slogLevel)

	if *healthcheck {
		log.Println("running healthcheck")
		if err := doHealthCheck(); err != nil {
			log.Fatal(err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := libcaptchify.Options{
		Difficulty:   *challengeDifficulty,
		ChallengeTTL: *challengeTTL,
		TokenTTL:     *tokenTTL,
		RateLimit:    *rateLimit,
		RateWindow:   *rateWindow,
		ServeUI:      *serveUI,
	}
	if *appSecret != "" {
		opts.SecretKey = []byte(*appSecret)
	}
	if *jwtSecret != "" {
		opts.SigningKey = []byte(*jwtSecret)
	}

	s, err := libcaptchify.New(ctx, opts)
	if err != nil {
		log.Fatalf("can't construct captchify server: %v", err)
	}

	wg := new(sync.WaitGroup)

	if *metricsBind != "" {
		wg.Add(1)
		go metricsServer(ctx, wg.Done)
	}

	var h http.Handler
	h = s
	h = internal.RemoteXRealIP(*useRemoteAddress, h)
	h = internal.XForwardedForToXRealIP(h)
	h = internal.RequestID(h)

	srv := http.Server{Handler: h, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, listenerUrl := setupListener(*bindNetwork, *bind)
	slog.Info(
		"listening",
		"url", listenerUrl,
		"difficulty", *challengeDifficulty,
		"challenge-ttl", *challengeTTL,
		"token-ttl", *tokenTTL,
		"rate-limit", *rateLimit,
		"rate-window", *rateWindow,
		"serve-ui", *serveUI,
		"use-remote-address", *useRemoteAddress,
		"version", captchify.Version,
	)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	wg.Wait()
}

func metricsServer(ctx context.Context, done func()) {
	defer done()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := http.Server{Handler: mux, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, metricsUrl := setupListener(*metricsBindNetwork, *metricsBind)
	slog.Debug("listening for metrics", "url", metricsUrl)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
