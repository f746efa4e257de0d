package services

import (
	"log/slog"

	"github.com/ashita-ai/kensa/internal/config"
)

// Shared OAuth keys. They apply identically to Jira and Confluence.
const (
	KeyOAuthClientID     = "ATLASSIAN_OAUTH_CLIENT_ID"
	KeyOAuthClientSecret = "ATLASSIAN_OAUTH_CLIENT_SECRET"
	KeyOAuthRedirectURI  = "ATLASSIAN_OAUTH_REDIRECT_URI"
	KeyOAuthScope        = "ATLASSIAN_OAUTH_SCOPE"
	KeyOAuthCloudID      = "ATLASSIAN_OAUTH_CLOUD_ID"
	KeyOAuthAccessToken  = "ATLASSIAN_OAUTH_ACCESS_TOKEN"
	KeyOAuthRefreshToken = "ATLASSIAN_OAUTH_REFRESH_TOKEN"
	KeyOAuthEnable       = "ATLASSIAN_OAUTH_ENABLE"

	KeyZephyrAPIToken = "ZEPHYR_API_TOKEN"
	KeyZephyrBaseURL  = "ZEPHYR_BASE_URL"
)

// Keys holds the per-service credential key names for Jira or Confluence.
type Keys struct {
	URL           string
	Username      string
	APIToken      string
	PersonalToken string
}

// KeysFor returns the credential key names for svc.
func KeysFor(svc Service) Keys {
	p := svc.envPrefix()
	return Keys{
		URL:           p + "_URL",
		Username:      p + "_USERNAME",
		APIToken:      p + "_API_TOKEN",
		PersonalToken: p + "_PERSONAL_TOKEN",
	}
}

// input is what each ladder rule sees.
type input struct {
	store      config.Store
	keys       Keys
	hasURL     bool
	deployment Deployment
}

// rule is one rung of the precedence ladder.
type rule struct {
	name  string
	mode  AuthMode
	match func(in input) bool
}

// ladder is evaluated top to bottom and the first match wins. Order matters:
// OAuth fields outrank basic and PAT credentials even when both are present,
// and the OAuth-enable flag only applies when no base URL is set.
var ladder = []rule{
	{
		name: "oauth client credentials",
		mode: ModeOAuthClientCredentials,
		match: func(in input) bool {
			return in.hasURL && in.store.HasAll(
				KeyOAuthClientID, KeyOAuthClientSecret, KeyOAuthRedirectURI, KeyOAuthScope, KeyOAuthCloudID)
		},
	},
	{
		name: "oauth access token",
		mode: ModeOAuthAccessToken,
		match: func(in input) bool {
			return in.hasURL && in.store.HasAll(KeyOAuthAccessToken, KeyOAuthCloudID)
		},
	},
	{
		name: "cloud basic",
		mode: ModeCloudBasic,
		match: func(in input) bool {
			return in.deployment == DeploymentCloud && in.store.HasAll(in.keys.Username, in.keys.APIToken)
		},
	},
	{
		name: "server personal token",
		mode: ModeServerPAT,
		match: func(in input) bool {
			return in.deployment == DeploymentServer && in.store.Has(in.keys.PersonalToken)
		},
	},
	{
		name: "server basic",
		mode: ModeServerBasic,
		match: func(in input) bool {
			return in.deployment == DeploymentServer && in.store.HasAll(in.keys.Username, in.keys.APIToken)
		},
	},
	{
		name: "oauth header",
		mode: ModeOAuthHeader,
		match: func(in input) bool {
			return !in.hasURL && in.store.Truthy(KeyOAuthEnable)
		},
	},
}

// ResolveService resolves Jira or Confluence. Zephyr is handled by ResolveZephyr.
func ResolveService(store config.Store, svc Service) Resolution {
	if svc == Zephyr {
		res, _ := ResolveZephyr(store)
		return res
	}

	keys := KeysFor(svc)
	rawURL := store.Get(keys.URL)
	in := input{
		store:      store,
		keys:       keys,
		hasURL:     rawURL != "",
		deployment: deploymentOf(rawURL),
	}

	for _, r := range ladder {
		if r.match(in) {
			return Resolution{
				Service:    svc,
				Mode:       r.mode,
				Deployment: in.deployment,
				Usable:     true,
				Rule:       r.name,
			}
		}
	}

	res := Resolution{Service: svc, Mode: ModeUnconfigured, Deployment: in.deployment}
	switch in.deployment {
	case DeploymentCloud:
		res.Reason = keys.URL + " is a cloud site but " + keys.Username + " and " + keys.APIToken + " are not both set"
	case DeploymentServer:
		res.Reason = keys.URL + " is a server site but neither " + keys.PersonalToken + " nor " +
			keys.Username + " and " + keys.APIToken + " are set"
	default:
		res.Reason = keys.URL + " is not set and " + KeyOAuthEnable + " is not enabled"
	}
	return res
}

// ResolveZephyr resolves the test-management service. Both the token and the
// base URL are required; the state tells which one is missing.
func ResolveZephyr(store config.Store) (Resolution, ZephyrState) {
	hasToken := store.Has(KeyZephyrAPIToken)
	baseURL := store.Get(KeyZephyrBaseURL)
	res := Resolution{Service: Zephyr, Mode: ModeUnconfigured, Deployment: deploymentOf(baseURL)}

	switch {
	case hasToken && baseURL != "":
		res.Mode = ModeBearerToken
		res.Usable = true
		res.Rule = "bearer token"
		return res, ZephyrConfigured
	case hasToken:
		res.Reason = KeyZephyrAPIToken + " is set but " + KeyZephyrBaseURL + " is missing"
		return res, ZephyrMissingURL
	case baseURL != "":
		res.Reason = KeyZephyrBaseURL + " is set but " + KeyZephyrAPIToken + " is missing"
		return res, ZephyrMissingToken
	}
	res.Reason = KeyZephyrAPIToken + " and " + KeyZephyrBaseURL + " are not set"
	return res, ZephyrUnconfigured
}

// Resolve runs resolution for every service and logs the outcome.
func Resolve(store config.Store, logger *slog.Logger) Result {
	result := Result{byService: make(map[Service]Resolution, len(All))}

	for _, svc := range []Service{Jira, Confluence} {
		res := ResolveService(store, svc)
		result.byService[svc] = res
		logResolution(logger, res)
		if res.Mode == ModeOAuthClientCredentials && res.Deployment != DeploymentCloud {
			logger.Warn("oauth client credentials are a cloud-only mode but the base URL is not a cloud site",
				"service", svc, "url", store.Get(KeysFor(svc).URL))
		}
	}

	zres, state := ResolveZephyr(store)
	result.byService[Zephyr] = zres
	result.zephyr = state
	switch state {
	case ZephyrMissingURL, ZephyrMissingToken:
		logger.Warn("zephyr partially configured, service will not be available",
			"state", state.String(), "reason", zres.Reason)
	default:
		logResolution(logger, zres)
	}

	return result
}

func logResolution(logger *slog.Logger, res Resolution) {
	if res.Usable {
		logger.Info("service configured",
			"service", res.Service, "mode", res.Mode.String(), "deployment", res.Deployment.String())
		return
	}
	logger.Info("service not configured", "service", res.Service, "reason", res.Reason)
}

// SecretValues returns every configured credential value that must never
// appear in caller-visible output.
func SecretValues(store config.Store) []string {
	keys := []string{
		KeyOAuthClientSecret, KeyOAuthAccessToken, KeyOAuthRefreshToken, KeyZephyrAPIToken,
	}
	for _, svc := range []Service{Jira, Confluence} {
		k := KeysFor(svc)
		keys = append(keys, k.APIToken, k.PersonalToken)
	}
	var out []string
	for _, k := range keys {
		if v := store.Get(k); v != "" {
			out = append(out, v)
		}
	}
	return out
}
