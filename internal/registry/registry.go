// Package registry holds the authenticated client for each usable backend
// service. Clients are built lazily on first use, exactly once per service,
// and shared read-only by every concurrent tool call afterwards. Services in
// the caller-token OAuth mode get one client per caller instead, cached for a
// bounded time.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ctreminiom/go-atlassian/v2/confluence"
	jira "github.com/ctreminiom/go-atlassian/v2/jira/v2"
	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/kensa/internal/config"
	"github.com/ashita-ai/kensa/internal/ctxutil"
	"github.com/ashita-ai/kensa/internal/services"
	"github.com/ashita-ai/kensa/internal/zephyr"
)

var (
	// ErrUnavailable is returned for services the credential resolver marked unusable.
	ErrUnavailable = errors.New("service is not configured")

	// ErrMissingUserToken is returned in caller-token OAuth mode when the
	// request carried no bearer token.
	ErrMissingUserToken = errors.New("no user OAuth token was provided with the request")

	// ErrMissingCloudID is returned in caller-token OAuth mode when no cloud id
	// was configured or forwarded.
	ErrMissingCloudID = errors.New("no Atlassian cloud id was configured or provided with the request")
)

const atlassianAPIGateway = "https://api.atlassian.com/ex/"

// Options tune client construction.
type Options struct {
	HTTPTimeout time.Duration
	MaxRetries  int
	UserAgent   string
	// CacheTTL bounds how long a per-caller client is reused.
	CacheTTL time.Duration
	Logger   *slog.Logger
	// Transport replaces the default base round tripper.
	Transport http.RoundTripper
}

// Registry yields ready-to-use clients per service.
type Registry struct {
	store    config.Store
	resolved services.Result
	opts     Options
	logger   *slog.Logger
	http     *http.Client

	group   singleflight.Group
	mu      sync.RWMutex
	clients map[services.Service]any

	perCaller *clientCache
}

// New creates a Registry. No client is built until first requested.
// Call Close to release background resources.
func New(store config.Store, resolved services.Result, opts Options) *Registry {
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		store:     store,
		resolved:  resolved,
		opts:      opts,
		logger:    logger,
		http:      buildHTTPClient(opts),
		clients:   make(map[services.Service]any),
		perCaller: newClientCache(opts.CacheTTL),
	}
}

// Close stops the per-caller cache eviction loop.
func (r *Registry) Close() {
	r.perCaller.Close()
}

// Resolved returns the credential resolution the registry was built from.
func (r *Registry) Resolved() services.Result {
	return r.resolved
}

// Jira returns the Jira client for this request.
func (r *Registry) Jira(ctx context.Context) (*JiraClient, error) {
	c, err := r.client(ctx, services.Jira, r.buildJira)
	if err != nil {
		return nil, err
	}
	return c.(*JiraClient), nil
}

// Confluence returns the Confluence client for this request.
func (r *Registry) Confluence(ctx context.Context) (*ConfluenceClient, error) {
	c, err := r.client(ctx, services.Confluence, r.buildConfluence)
	if err != nil {
		return nil, err
	}
	return c.(*ConfluenceClient), nil
}

// Zephyr returns the Zephyr client.
func (r *Registry) Zephyr(ctx context.Context) (*zephyr.Client, error) {
	c, err := r.client(ctx, services.Zephyr, func(callerCreds) (any, error) { return r.buildZephyr() })
	if err != nil {
		return nil, err
	}
	return c.(*zephyr.Client), nil
}

// callerCreds are the credentials forwarded with a request in caller-token mode.
type callerCreds struct {
	token   string
	cloudID string
}

type builder func(creds callerCreds) (any, error)

func (r *Registry) client(ctx context.Context, svc services.Service, build builder) (any, error) {
	res := r.resolved.Resolution(svc)
	if !res.Usable {
		return nil, fmt.Errorf("%w: %s: %s", ErrUnavailable, svc, res.Reason)
	}
	if res.Mode == services.ModeOAuthHeader {
		return r.callerClient(ctx, svc, build)
	}
	return r.sharedClient(svc, build)
}

// sharedClient builds the process-wide client once. Concurrent first callers
// share a single construction; a failed build is not remembered.
func (r *Registry) sharedClient(svc services.Service, build builder) (any, error) {
	r.mu.RLock()
	c, ok := r.clients[svc]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	v, err, _ := r.group.Do(string(svc), func() (any, error) {
		r.mu.RLock()
		c, ok := r.clients[svc]
		r.mu.RUnlock()
		if ok {
			return c, nil
		}

		c, err := build(callerCreds{})
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.clients[svc] = c
		r.mu.Unlock()
		r.logger.Info("registry: client ready", "service", svc, "mode", r.resolved.Mode(svc).String())
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("registry: build %s client: %w", svc, err)
	}
	return v, nil
}

func (r *Registry) callerClient(ctx context.Context, svc services.Service, build builder) (any, error) {
	token, ok := ctxutil.UserTokenFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%s: %w", svc, ErrMissingUserToken)
	}
	cloudID := ctxutil.CloudIDFromContext(ctx)
	if cloudID == "" {
		cloudID = r.store.Get(services.KeyOAuthCloudID)
	}
	if cloudID == "" {
		return nil, fmt.Errorf("%s: %w", svc, ErrMissingCloudID)
	}

	key := cacheKey(string(svc), token, cloudID)
	if c, ok := r.perCaller.Get(key); ok {
		return c, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if c, ok := r.perCaller.Get(key); ok {
			return c, nil
		}
		c, err := build(callerCreds{token: token, cloudID: cloudID})
		if err != nil {
			return nil, err
		}
		r.perCaller.Set(key, c)
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("registry: build %s client: %w", svc, err)
	}
	return v, nil
}

// oauthSettings are the shared OAuth keys.
type oauthSettings struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	CloudID      string
	AccessToken  string
	RefreshToken string
}

func (r *Registry) oauth() oauthSettings {
	return oauthSettings{
		ClientID:     r.store.Get(services.KeyOAuthClientID),
		ClientSecret: r.store.Get(services.KeyOAuthClientSecret),
		RedirectURI:  r.store.Get(services.KeyOAuthRedirectURI),
		Scopes:       strings.Fields(r.store.Get(services.KeyOAuthScope)),
		CloudID:      r.store.Get(services.KeyOAuthCloudID),
		AccessToken:  r.store.Get(services.KeyOAuthAccessToken),
		RefreshToken: r.store.Get(services.KeyOAuthRefreshToken),
	}
}

// atlassianAuth is the subset of go-atlassian's auth service the registry sets.
type atlassianAuth interface {
	SetBasicAuth(mail, token string)
	SetBearerToken(token string)
	SetUserAgent(agent string)
}

// connection describes how to reach and authenticate against Jira or Confluence.
type connection struct {
	site string
	http *http.Client
	auth func(a atlassianAuth)
}

// connect turns the resolved mode into a site URL, an HTTP client and an
// auth setter. product is the API gateway segment, "jira" or "confluence".
func (r *Registry) connect(svc services.Service, product string, creds callerCreds) (connection, error) {
	keys := services.KeysFor(svc)
	mode := r.resolved.Mode(svc)
	conn := connection{site: r.store.Get(keys.URL), http: r.http}
	if svc == services.Confluence {
		// go-atlassian adds the /wiki context path itself.
		conn.site = strings.TrimSuffix(strings.TrimRight(conn.site, "/"), "/wiki")
	}
	userAgent := func(a atlassianAuth) {
		if r.opts.UserAgent != "" {
			a.SetUserAgent(r.opts.UserAgent)
		}
	}

	switch mode {
	case services.ModeCloudBasic, services.ModeServerBasic:
		user, token := r.store.Get(keys.Username), r.store.Get(keys.APIToken)
		conn.auth = func(a atlassianAuth) { a.SetBasicAuth(user, token); userAgent(a) }
	case services.ModeServerPAT:
		pat := r.store.Get(keys.PersonalToken)
		conn.auth = func(a atlassianAuth) { a.SetBearerToken(pat); userAgent(a) }
	case services.ModeOAuthAccessToken:
		o := r.oauth()
		conn.site = atlassianAPIGateway + product + "/" + o.CloudID
		conn.auth = func(a atlassianAuth) { a.SetBearerToken(o.AccessToken); userAgent(a) }
	case services.ModeOAuthClientCredentials:
		o := r.oauth()
		if o.RefreshToken == "" && o.AccessToken == "" {
			return connection{}, fmt.Errorf("oauth client credentials need %s or %s to obtain tokens",
				services.KeyOAuthRefreshToken, services.KeyOAuthAccessToken)
		}
		conn.site = atlassianAPIGateway + product + "/" + o.CloudID
		conn.http = withTokenSource(r.http, refreshingTokenSource(r.http, o))
		conn.auth = userAgent
	case services.ModeOAuthHeader:
		conn.site = atlassianAPIGateway + product + "/" + creds.cloudID
		conn.auth = func(a atlassianAuth) { a.SetBearerToken(creds.token); userAgent(a) }
	default:
		return connection{}, fmt.Errorf("%w: %s", ErrUnavailable, svc)
	}
	return conn, nil
}

func (r *Registry) buildJira(creds callerCreds) (any, error) {
	conn, err := r.connect(services.Jira, "jira", creds)
	if err != nil {
		return nil, err
	}
	api, err := jira.New(conn.http, conn.site)
	if err != nil {
		return nil, err
	}
	conn.auth(api.Auth)
	return &JiraClient{api: api}, nil
}

func (r *Registry) buildConfluence(creds callerCreds) (any, error) {
	conn, err := r.connect(services.Confluence, "confluence", creds)
	if err != nil {
		return nil, err
	}
	api, err := confluence.New(conn.http, conn.site)
	if err != nil {
		return nil, err
	}
	conn.auth(api.Auth)
	return &ConfluenceClient{api: api}, nil
}

func (r *Registry) buildZephyr() (any, error) {
	return zephyr.NewClient(zephyr.Config{
		BaseURL:    r.store.Get(services.KeyZephyrBaseURL),
		Token:      r.store.Get(services.KeyZephyrAPIToken),
		HTTPClient: r.http,
		UserAgent:  r.opts.UserAgent,
		Logger:     r.logger,
	})
}
