package main

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joeshaw/envdecode"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/openshift/authgate/pkg/authclient"
	"github.com/openshift/authgate/pkg/authorize"
	"github.com/openshift/authgate/pkg/cache"
	"github.com/openshift/authgate/pkg/cache/memcached"
	"github.com/openshift/authgate/pkg/cache/redis"
	"github.com/openshift/authgate/pkg/errorpage"
	authgatehttp "github.com/openshift/authgate/pkg/http"
	"github.com/openshift/authgate/pkg/logger"
	"github.com/openshift/authgate/pkg/tracing"
)

const desc = `
Gate HTTP requests with Basic authentication against a remote authentication service.

Every request to a protected path must carry Basic credentials. The user name is
checked for membership in --group by the authentication service named in the
connection string (username#base_url#password). Allowed requests are forwarded to
--upstream or served from --root; denied requests get a 401, and a 500 when the
authentication service cannot be reached.

Membership answers are cached for --membership-ttl, in memory or in a shared
memcached or redis. The connection string is best passed in the environment as
AUTHGATE_CONNECTION_STRING or from a file with --connection-string-file.
`

const (
	cacheMemory    = "memory"
	cacheMemcached = "memcached"
	cacheRedis     = "redis"
)

func defaultOpts() *Options {
	return &Options{
		Realm:            authorize.DefaultRealm,
		Timeout:          authclient.DefaultTimeout,
		MembershipTTL:    authclient.DefaultMembershipTTL,
		CacheBackend:     cacheMemory,
		BreakerTimeout:   30 * time.Second,
		BreakerFailures:  5,
		TracingService:   "authgate",
		TracingFraction:  0.1,
		RedisKeyPrefix:   redis.DefaultKeyPrefix,
		MemcachedServers: []string{},
	}
}

func main() {
	opt := defaultOpts()

	l := logger.New(os.Stderr, "")
	stdlog.SetOutput(log.NewStdlibAdapter(l))
	opt.Logger = l

	if err := envdecode.Decode(opt); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		level.Error(l).Log("msg", "invalid environment", "err", err)
		os.Exit(1)
	}

	var listen, listenInternal string
	cmd := &cobra.Command{
		Short:         "Basic authentication gate backed by a remote authentication service.",
		Long:          desc,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			listener, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}
			internalListener, err := net.Listen("tcp", listenInternal)
			if err != nil {
				return err
			}

			return opt.Run(context.Background(), listener, internalListener)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "0.0.0.0:8080", "A host:port to listen on for gated traffic.")
	cmd.Flags().StringVar(&listenInternal, "listen-internal", "localhost:8081", "A host:port to listen on for health and metrics.")

	cmd.Flags().StringVar(&opt.ConnectionString, "connection-string", opt.ConnectionString, "The authentication service connection string, username#base_url#password.")
	cmd.Flags().StringVar(&opt.ConnectionStringFile, "connection-string-file", opt.ConnectionStringFile, "A file containing the connection string.")
	cmd.Flags().DurationVar(&opt.Timeout, "timeout", opt.Timeout, "The timeout of each request to the authentication service.")

	cmd.Flags().StringVar(&opt.Group, "group", opt.Group, "The group users must be a member of. If empty, no request is checked.")
	cmd.Flags().StringSliceVar(&opt.Paths, "path", opt.Paths, "URL path prefixes that require authentication. If empty, all paths do.")
	cmd.Flags().StringVar(&opt.Realm, "realm", opt.Realm, "The realm announced to clients.")
	cmd.Flags().StringVar(&opt.Page404, "page-404", opt.Page404, "Path to a custom 404 page.")
	cmd.Flags().StringVar(&opt.Page50x, "page-50x", opt.Page50x, "Path to a custom 50x page.")

	cmd.Flags().StringVar(&opt.Upstream, "upstream", opt.Upstream, "The URL allowed requests are proxied to.")
	cmd.Flags().StringVar(&opt.Root, "root", opt.Root, "A directory allowed requests are served from, if --upstream is not set.")

	cmd.Flags().StringVar(&opt.CacheBackend, "membership-cache", opt.CacheBackend, fmt.Sprintf("Where membership answers are cached. Options: '%s', '%s', '%s'.", cacheMemory, cacheMemcached, cacheRedis))
	cmd.Flags().DurationVar(&opt.MembershipTTL, "membership-ttl", opt.MembershipTTL, "How long membership answers are cached.")
	cmd.Flags().StringSliceVar(&opt.MemcachedServers, "memcached", opt.MemcachedServers, "Memcached servers, host:port.")
	cmd.Flags().StringVar(&opt.RedisAddr, "redis-addr", opt.RedisAddr, "The redis server, host:port.")
	cmd.Flags().StringVar(&opt.RedisKeyPrefix, "redis-key-prefix", opt.RedisKeyPrefix, "The prefix of membership keys in redis.")

	cmd.Flags().Uint32Var(&opt.BreakerFailures, "breaker-failures", opt.BreakerFailures, "Consecutive failures of the authentication service that stop requests to it. 0 disables the circuit breaker.")
	cmd.Flags().DurationVar(&opt.BreakerTimeout, "breaker-timeout", opt.BreakerTimeout, "How long requests to the authentication service are stopped before retrying.")

	cmd.Flags().StringVar(&opt.LogLevel, "log-level", opt.LogLevel, "Log filtering level. e.g info, debug, warn, error")

	cmd.Flags().StringVar(&opt.TracingService, "internal.tracing.service-name", opt.TracingService,
		"The service name to report to the tracing backend.")
	cmd.Flags().StringVar(&opt.TracingEndpoint, "internal.tracing.endpoint", opt.TracingEndpoint,
		"The host:port of the OTLP/HTTP trace collector. If it's not set, tracing will be disabled.")
	cmd.Flags().Float64Var(&opt.TracingFraction, "internal.tracing.sampling-fraction", opt.TracingFraction,
		"The fraction of traces to sample. Thus, if you set this to .5, half of traces will be sampled.")

	level.Info(l).Log("msg", "authgate initialized.")
	if err := cmd.Execute(); err != nil {
		level.Error(l).Log("err", err)
		os.Exit(1)
	}
}

type Options struct {
	ConnectionString     string        `env:"AUTHGATE_CONNECTION_STRING"`
	ConnectionStringFile string        `env:"AUTHGATE_CONNECTION_STRING_FILE"`
	Timeout              time.Duration `env:"AUTHGATE_TIMEOUT"`

	Group   string   `env:"AUTHGATE_GROUP"`
	Paths   []string `env:"AUTHGATE_PATHS"`
	Realm   string   `env:"AUTHGATE_REALM"`
	Page404 string   `env:"AUTHGATE_PAGE_404"`
	Page50x string   `env:"AUTHGATE_PAGE_50X"`

	Upstream string `env:"AUTHGATE_UPSTREAM"`
	Root     string `env:"AUTHGATE_ROOT"`

	CacheBackend     string        `env:"AUTHGATE_MEMBERSHIP_CACHE"`
	MembershipTTL    time.Duration `env:"AUTHGATE_MEMBERSHIP_TTL"`
	MemcachedServers []string      `env:"AUTHGATE_MEMCACHED"`
	RedisAddr        string        `env:"AUTHGATE_REDIS_ADDR"`
	RedisKeyPrefix   string        `env:"AUTHGATE_REDIS_KEY_PREFIX"`

	BreakerFailures uint32
	BreakerTimeout  time.Duration

	LogLevel string `env:"AUTHGATE_LOG_LEVEL"`
	Logger   log.Logger

	TracingService  string
	TracingEndpoint string `env:"AUTHGATE_TRACING_ENDPOINT"`
	TracingFraction float64
}

type internalPaths struct {
	Paths []string `json:"paths"`
}

func (o *Options) connectionString() (string, error) {
	if o.ConnectionStringFile == "" {
		return o.ConnectionString, nil
	}
	data, err := os.ReadFile(o.ConnectionStringFile)
	if err != nil {
		return "", fmt.Errorf("unable to read connection string file: %v", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (o *Options) membershipCache() (cache.Cacher, func() error, error) {
	nop := func() error { return nil }

	if o.MembershipTTL <= 0 {
		return nil, nop, fmt.Errorf("--membership-ttl must be positive, got %v", o.MembershipTTL)
	}

	switch o.CacheBackend {
	case cacheMemory, "":
		c, err := cache.NewLRU(authclient.DefaultMembershipCacheSize, o.MembershipTTL, nil)
		return c, nop, err
	case cacheMemcached:
		if len(o.MemcachedServers) == 0 {
			return nil, nop, fmt.Errorf("--memcached is required with --membership-cache=%s", cacheMemcached)
		}
		if o.MembershipTTL > memcached.MaxTTL {
			return nil, nop, fmt.Errorf("--membership-ttl must be at most %v with --membership-cache=%s", memcached.MaxTTL, cacheMemcached)
		}
		return memcached.New(o.MembershipTTL, o.Timeout, o.MemcachedServers...), nop, nil
	case cacheRedis:
		if o.RedisAddr == "" {
			return nil, nop, fmt.Errorf("--redis-addr is required with --membership-cache=%s", cacheRedis)
		}
		client := goredis.NewClient(&goredis.Options{
			Addr:         o.RedisAddr,
			ReadTimeout:  o.Timeout,
			WriteTimeout: o.Timeout,
		})
		return redis.New(client, o.RedisKeyPrefix, o.MembershipTTL), client.Close, nil
	default:
		return nil, nop, fmt.Errorf("unknown membership cache %q", o.CacheBackend)
	}
}

// upstreamError answers a request the upstream could not serve.
func (o *Options) upstreamError(w http.ResponseWriter, req *http.Request, err error) {
	level.Error(o.Logger).Log("msg", "upstream request failed", "err", err)
	res, rerr := errorpage.Default.Render(req.URL, req.Method, http.StatusBadGateway, o.Page404, o.Page50x)
	if rerr != nil {
		level.Error(o.Logger).Log("msg", "failed to render error page", "err", rerr)
		res = errorpage.InternalServerError()
	}
	if err := res.WriteTo(w); err != nil {
		level.Warn(o.Logger).Log("msg", "failed to write response", "err", err)
	}
}

func (o *Options) Run(ctx context.Context, externalListener, internalListener net.Listener) error {
	levelledOption := logger.LogLevelFromString(o.LogLevel)
	o.Logger = level.NewFilter(o.Logger, levelledOption)

	conn, err := o.connectionString()
	if err != nil {
		return err
	}

	if o.Upstream == "" && o.Root == "" {
		return fmt.Errorf("one of --upstream or --root is required")
	}

	tp, shutdownTracer, err := tracing.InitTracer(ctx, o.TracingService, o.TracingEndpoint, o.TracingFraction)
	if err != nil {
		return fmt.Errorf("cannot initialize tracer: %v", err)
	}
	otel.SetErrorHandler(tracing.OtelErrorHandler{Logger: o.Logger})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	instrumentedClients := authgatehttp.NewInstrumentedRoundTripper(reg)
	instrumentedHandlers := authgatehttp.NewInstrumentedHandler(reg)

	baseTransport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}

	var authTransport http.RoundTripper = otelhttp.NewTransport(baseTransport)
	if o.BreakerFailures > 0 {
		authTransport = authgatehttp.NewCircuitBreakerRoundTripper(o.Logger, authgatehttp.BreakerConfig{
			Name:             "authservice",
			FailureThreshold: o.BreakerFailures,
			Timeout:          o.BreakerTimeout,
		}, authTransport)
	}
	authHTTPClient := &http.Client{
		Transport: instrumentedClients.NewRoundTripper("authservice", authTransport),
	}

	membershipCache, closeCache, err := o.membershipCache()
	if err != nil {
		return err
	}

	authClient, err := authclient.NewFromConnectionString(conn,
		authclient.WithHTTPClient(authHTTPClient),
		authclient.WithTimeout(o.Timeout),
		authclient.WithCache(membershipCache),
		authclient.WithLogger(o.Logger),
		authclient.WithRegisterer(reg),
	)
	if err != nil {
		return err
	}

	var backend http.Handler
	if o.Upstream != "" {
		u, err := url.Parse(o.Upstream)
		if err != nil {
			return fmt.Errorf("--upstream is invalid: %v", err)
		}
		proxy := httputil.NewSingleHostReverseProxy(u)
		proxy.Transport = instrumentedClients.NewRoundTripper("upstream", otelhttp.NewTransport(baseTransport))
		proxy.ErrorHandler = o.upstreamError
		backend = proxy
	} else {
		backend = http.FileServer(http.Dir(o.Root))
	}

	authOpts := authorize.Options{
		Group:   o.Group,
		Paths:   o.Paths,
		Realm:   o.Realm,
		Page404: o.Page404,
		Page50x: o.Page50x,
	}
	if o.Group == "" {
		level.Warn(o.Logger).Log("msg", "no --group set, requests are not checked")
	}

	var g run.Group
	{
		internal := http.NewServeMux()

		authgatehttp.DebugRoutes(internal)
		authgatehttp.MetricRoutes(internal, reg)
		authgatehttp.HealthRoutes(internal, func() error {
			_, err := authClient.SessionToken(ctx)
			return err
		})

		r := chi.NewRouter()
		r.Mount("/", internal)

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			internalPathJSON, _ := json.MarshalIndent(internalPaths{Paths: []string{"/", "/metrics", "/debug/pprof", "/healthz", "/healthz/ready"}}, "", "  ")

			w.Header().Add("Content-Type", "application/json")
			if _, err := w.Write(internalPathJSON); err != nil {
				level.Error(o.Logger).Log("msg", "could not write internal paths", "err", err)
			}
		})

		s := &http.Server{
			Handler: otelhttp.NewHandler(r, "internal", otelhttp.WithTracerProvider(tp)),
		}

		// Run the internal server.
		g.Add(func() error {
			if err := s.Serve(internalListener); err != nil && err != http.ErrServerClosed {
				level.Error(o.Logger).Log("msg", "internal HTTP server exited", "err", err)
				return err
			}
			return nil
		}, func(error) {
			_ = s.Shutdown(context.TODO())
			internalListener.Close()
		})
	}
	{
		external := chi.NewRouter()
		external.Use(middleware.RequestID)
		external.Use(authgatehttp.RequestLogger(log.With(o.Logger, "component", "http")))

		mux := http.NewServeMux()
		authgatehttp.HealthRoutes(mux, nil)
		external.Handle("/healthz", mux)
		external.Handle("/healthz/ready", mux)

		external.Handle("/*", instrumentedHandlers.Handle("gate",
			authorize.NewHandler(o.Logger, authOpts, authClient, errorpage.Default, backend),
		))

		s := &http.Server{
			Handler:           otelhttp.NewHandler(external, "external", otelhttp.WithTracerProvider(tp)),
			ReadHeaderTimeout: 30 * time.Second,
		}

		// Run the external server.
		g.Add(func() error {
			if err := s.Serve(externalListener); err != nil && err != http.ErrServerClosed {
				level.Error(o.Logger).Log("msg", "external HTTP server exited", "err", err)
				return err
			}
			return nil
		}, func(error) {
			_ = s.Shutdown(context.TODO())
			externalListener.Close()

			// Close clients in order to check for leaks properly.
			authHTTPClient.CloseIdleConnections()
			baseTransport.CloseIdleConnections()
			if err := closeCache(); err != nil {
				level.Warn(o.Logger).Log("msg", "failed to close membership cache", "err", err)
			}
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(sctx); err != nil {
				level.Warn(o.Logger).Log("msg", "failed to shut down tracer", "err", err)
			}
		})
	}

	// Kill all when caller requests to.
	gctx, gcancel := context.WithCancel(ctx)
	g.Add(func() error {
		<-gctx.Done()
		return gctx.Err()
	}, func(err error) {
		gcancel()
	})
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	level.Info(o.Logger).Log("msg", "starting authgate", "external", externalListener.Addr().String(), "internal", internalListener.Addr().String(), "authservice", authClient.Config().String())

	return g.Run()
}
