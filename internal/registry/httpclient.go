package registry

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// Atlassian OAuth 2.0 (3LO) endpoints.
var atlassianEndpoint = oauth2.Endpoint{
	AuthURL:  "https://auth.atlassian.com/authorize",
	TokenURL: "https://auth.atlassian.com/oauth/token",
}

// buildHTTPClient constructs the backend HTTP client. Requests are traced;
// retries are opt-in and off by default.
func buildHTTPClient(opts Options) *http.Client {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	traced := otelhttp.NewTransport(base)

	if opts.MaxRetries > 0 {
		rc := retryablehttp.NewClient()
		rc.HTTPClient = &http.Client{Transport: traced}
		rc.RetryMax = opts.MaxRetries
		rc.RetryWaitMin = 500 * time.Millisecond
		rc.RetryWaitMax = 5 * time.Second
		// Default CheckRetry retries 429/5xx and honors Retry-After.
		rc.Logger = nil
		httpClient := rc.StandardClient()
		httpClient.Timeout = opts.HTTPTimeout
		return httpClient
	}
	return &http.Client{Transport: traced, Timeout: opts.HTTPTimeout}
}

// withTokenSource returns a copy of hc whose requests carry tokens from ts.
func withTokenSource(hc *http.Client, ts oauth2.TokenSource) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: hc.Transport},
		Timeout:   hc.Timeout,
	}
}

// refreshingTokenSource mints access tokens from the registered OAuth app.
// The refresh exchange itself runs over hc so it shares timeouts and tracing.
func refreshingTokenSource(hc *http.Client, cfg oauthSettings) oauth2.TokenSource {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
		Endpoint:     atlassianEndpoint,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
	// With a refresh token the startup access token may already be stale and
	// carries no expiry, so it is dropped and the first request mints a fresh
	// one. Without a refresh token it is all there is.
	seed := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	if cfg.RefreshToken == "" {
		seed.AccessToken = cfg.AccessToken
	}
	return oauth2.ReuseTokenSource(seed, conf.TokenSource(ctx, seed))
}
