// Package authclient talks to the remote authentication service. It keeps one
// session token for the configured principal and answers group membership
// questions, caching the answers for a short time.
package authclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/openshift/authgate/pkg/cache"
	"github.com/openshift/authgate/pkg/runutil"
)

const (
	// DefaultMembershipTTL is how long a membership answer is cached.
	DefaultMembershipTTL = 120 * time.Second
	// DefaultMembershipCacheSize bounds the in-memory membership cache.
	DefaultMembershipCacheSize = 1000
	// DefaultTimeout bounds every request to the authentication service.
	DefaultTimeout = 10 * time.Second

	serviceName = "authentication"

	sessionBodyLimit    = 16 * 1024
	membershipBodyLimit = 1024
)

// Client answers membership queries against the authentication service.
// It is safe for concurrent use.
type Client struct {
	cfg Config

	client  *http.Client
	timeout time.Duration
	cache   cache.Cacher
	logger  log.Logger
	reg     prometheus.Registerer
	now     func() time.Time

	sessionTTL    time.Duration
	membershipTTL time.Duration

	sessions sessionStore

	sessionRefreshesTotal *prometheus.CounterVec
	membershipChecksTotal *prometheus.CounterVec
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for outbound requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithTimeout bounds each outbound request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithCache replaces the in-memory membership cache.
func WithCache(c cache.Cacher) Option {
	return func(cl *Client) { cl.cache = c }
}

func WithLogger(l log.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(cl *Client) { cl.reg = reg }
}

// WithClock sets the time source for session and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

func WithSessionTTL(d time.Duration) Option {
	return func(cl *Client) { cl.sessionTTL = d }
}

// WithMembershipTTL sets the TTL of the default in-memory cache. It has no
// effect together with WithCache.
func WithMembershipTTL(d time.Duration) Option {
	return func(cl *Client) { cl.membershipTTL = d }
}

// New creates a Client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		client:        http.DefaultClient,
		timeout:       DefaultTimeout,
		logger:        log.NewNopLogger(),
		now:           time.Now,
		sessionTTL:    DefaultSessionTTL,
		membershipTTL: DefaultMembershipTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.With(c.logger, "component", "authclient")

	if _, err := url.Parse(cfg.BasePath); err != nil {
		return nil, wrapf(ErrConfig, err, "invalid base URL")
	}

	if c.cache == nil {
		lru, err := cache.NewLRU(DefaultMembershipCacheSize, c.membershipTTL, c.now)
		if err != nil {
			return nil, wrapf(ErrConfig, err, "unable to create membership cache")
		}
		c.cache = lru
	}
	c.cache = cache.NewInstrumented(c.cache, c.reg)

	c.sessionRefreshesTotal = promauto.With(c.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "authclient_session_refreshes_total",
			Help: "The number of session tokens requested from the authentication service.",
		}, []string{"result"},
	)
	c.membershipChecksTotal = promauto.With(c.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "authclient_membership_checks_total",
			Help: "The number of membership checks sent to the authentication service.",
		}, []string{"result"},
	)

	return c, nil
}

// NewFromConnectionString parses conn and creates a Client for it.
func NewFromConnectionString(conn string, opts ...Option) (*Client, error) {
	cfg, err := ParseConnectionString(conn)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// Config returns the configuration the client was created with.
func (c *Client) Config() Config {
	return c.cfg
}

// SessionToken returns the cached session token, requesting a new one from
// the authentication service when none is cached or the cached one expired.
func (c *Client) SessionToken(ctx context.Context) (string, error) {
	if token, ok := c.sessions.Load(c.now()); ok {
		return token, nil
	}

	q := url.Values{}
	q.Set("username", c.cfg.User)
	q.Set("password", c.cfg.Password)
	q.Set("service_name", serviceName)

	status, body, err := c.get(ctx, c.cfg.BasePath+"/session?"+q.Encode(), "", sessionBodyLimit)
	if err != nil {
		c.sessionRefreshesTotal.WithLabelValues("error").Inc()
		return "", err
	}
	if status/100 != 2 {
		c.sessionRefreshesTotal.WithLabelValues("error").Inc()
		return "", errorf(ErrTransport, "session request rejected with status %d", status)
	}

	c.sessions.Store(body, c.now().Add(c.sessionTTL))
	c.sessionRefreshesTotal.WithLabelValues("success").Inc()
	level.Debug(c.logger).Log("msg", "acquired session token", "principal", c.cfg.User)

	return body, nil
}

// IsMemberOfGroup reports whether user belongs to group. Answers are cached
// by group and user. Any body other than "true" is a negative answer; only a
// failure to talk to the service is an error.
func (c *Client) IsMemberOfGroup(ctx context.Context, group, user string) (bool, error) {
	key := membershipKey(group, user)

	if member, ok := c.lookup(ctx, key); ok {
		return member, nil
	}

	member, err := c.queryMembership(ctx, group, user)
	if err != nil {
		c.membershipChecksTotal.WithLabelValues("error").Inc()
		return false, err
	}
	if member {
		c.membershipChecksTotal.WithLabelValues("member").Inc()
	} else {
		c.membershipChecksTotal.WithLabelValues("not_member").Inc()
	}

	value := []byte("false")
	if member {
		value = []byte("true")
	}
	if err := c.cache.Set(ctx, key, value); err != nil {
		level.Warn(c.logger).Log("msg", "failed to cache membership", "group", group, "user", user, "err", err)
	}

	return member, nil
}

func (c *Client) lookup(ctx context.Context, key string) (bool, bool) {
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		level.Warn(c.logger).Log("msg", "failed to read membership cache", "err", err)
		return false, false
	}
	if !ok {
		return false, false
	}
	return string(raw) == "true", true
}

// queryMembership asks the service directly. A 401 means the service no
// longer accepts the session token; the session is dropped and the query is
// retried once with a fresh token.
func (c *Client) queryMembership(ctx context.Context, group, user string) (bool, error) {
	endpoint := fmt.Sprintf("%s/is-member/%s/%s", c.cfg.BasePath, url.PathEscape(user), url.PathEscape(group))

	for attempt := 0; ; attempt++ {
		token, err := c.SessionToken(ctx)
		if err != nil {
			return false, err
		}

		status, body, err := c.get(ctx, endpoint, token, membershipBodyLimit)
		if err != nil {
			return false, err
		}

		switch {
		case status == http.StatusUnauthorized && attempt == 0:
			level.Debug(c.logger).Log("msg", "session token rejected, refreshing")
			c.sessions.Invalidate(token)
			continue
		case status/100 != 2:
			return false, errorf(ErrTransport, "membership check rejected with status %d", status)
		}

		return body == "true", nil
	}
}

// get performs a GET against endpoint and returns the status and the body,
// which must be valid UTF-8 and at most limit bytes. A non-empty token is sent verbatim as the
// Authorization header.
func (c *Client) get(ctx context.Context, endpoint, token string, limit int64) (int, string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, "", wrapf(ErrConfig, err, "unable to create request")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return 0, "", wrapf(ErrTransport, err, "unable to perform request")
	}
	defer runutil.ExhaustCloseWithLogOnErr(c.logger, res.Body, "close response body")

	data, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return 0, "", wrapf(ErrTransport, err, "unable to read response")
	}
	if int64(len(data)) > limit {
		return 0, "", errorf(ErrDecode, "response body exceeds %d bytes", limit)
	}
	if !utf8.Valid(data) {
		return 0, "", errorf(ErrDecode, "response body is not valid UTF-8")
	}

	return res.StatusCode, string(data), nil
}

func membershipKey(group, user string) string {
	return group + "#" + user
}
