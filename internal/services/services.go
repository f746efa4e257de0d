// Package services decides, from configuration alone, which backend services
// are usable and how each one authenticates.
//
// Resolution is pure: it reads a config.Store, performs no I/O and never
// fails. An unconfigured service is a normal outcome, reported as unusable.
package services

// Service identifies one independently configured backend.
type Service string

const (
	Jira       Service = "jira"
	Confluence Service = "confluence"
	Zephyr     Service = "zephyr"
)

// All lists every service in a stable order.
var All = []Service{Jira, Confluence, Zephyr}

// envPrefix returns the environment key prefix for Jira and Confluence.
func (s Service) envPrefix() string {
	switch s {
	case Jira:
		return "JIRA"
	case Confluence:
		return "CONFLUENCE"
	}
	return ""
}

// AuthMode is the authentication strategy selected for a service.
type AuthMode int

const (
	ModeUnconfigured AuthMode = iota
	// ModeOAuthClientCredentials uses a registered OAuth 2.0 (3LO) app and a cloud id.
	ModeOAuthClientCredentials
	// ModeOAuthAccessToken uses a pre-issued OAuth access token and a cloud id.
	ModeOAuthAccessToken
	// ModeCloudBasic uses username + API token against a cloud site.
	ModeCloudBasic
	// ModeServerPAT uses a personal access token against Server/Data Center.
	ModeServerPAT
	// ModeServerBasic uses username + password/token against Server/Data Center.
	ModeServerBasic
	// ModeOAuthHeader expects each caller to forward its own bearer token.
	ModeOAuthHeader
	// ModeBearerToken is the only mode of the test-management service.
	ModeBearerToken
)

func (m AuthMode) String() string {
	switch m {
	case ModeUnconfigured:
		return "unconfigured"
	case ModeOAuthClientCredentials:
		return "oauth-3lo-client-credentials"
	case ModeOAuthAccessToken:
		return "oauth-3lo-provided-access-token"
	case ModeCloudBasic:
		return "cloud-basic-token"
	case ModeServerPAT:
		return "server-personal-access-token"
	case ModeServerBasic:
		return "server-basic-auth"
	case ModeOAuthHeader:
		return "minimal-oauth-header-provided"
	case ModeBearerToken:
		return "bearer-token"
	}
	return "unknown"
}

// Deployment is the hosting shape derived from a service's base URL.
type Deployment int

const (
	// DeploymentNone means no base URL was configured.
	DeploymentNone Deployment = iota
	DeploymentCloud
	DeploymentServer
)

func (d Deployment) String() string {
	switch d {
	case DeploymentCloud:
		return "cloud"
	case DeploymentServer:
		return "server"
	}
	return "none"
}

// ZephyrState distinguishes the partially configured test-management states.
type ZephyrState int

const (
	ZephyrUnconfigured ZephyrState = iota
	ZephyrConfigured
	ZephyrMissingURL
	ZephyrMissingToken
)

func (z ZephyrState) String() string {
	switch z {
	case ZephyrConfigured:
		return "configured"
	case ZephyrMissingURL:
		return "missing-url"
	case ZephyrMissingToken:
		return "missing-token"
	}
	return "unconfigured"
}

// Resolution is the outcome for one service.
type Resolution struct {
	Service    Service
	Mode       AuthMode
	Deployment Deployment
	Usable     bool
	// Reason explains an unusable outcome. Empty when usable.
	Reason string
	// Rule names the ladder rule that matched, for diagnostics.
	Rule string
}

// Result holds the resolution of every service.
type Result struct {
	byService map[Service]Resolution
	zephyr    ZephyrState
}

// Resolution returns the outcome for svc. Unknown services are unconfigured.
func (r Result) Resolution(svc Service) Resolution {
	if res, ok := r.byService[svc]; ok {
		return res
	}
	return Resolution{Service: svc, Mode: ModeUnconfigured, Reason: "unknown service"}
}

// Mode returns the selected auth mode for svc.
func (r Result) Mode(svc Service) AuthMode {
	return r.Resolution(svc).Mode
}

// Usable reports whether svc can be called.
func (r Result) Usable(svc Service) bool {
	return r.Resolution(svc).Usable
}

// Zephyr returns the diagnostic test-management state.
func (r Result) Zephyr() ZephyrState {
	return r.zephyr
}

// Availability returns a fresh map from service to usability.
func (r Result) Availability() map[Service]bool {
	m := make(map[Service]bool, len(All))
	for _, svc := range All {
		m[svc] = r.Usable(svc)
	}
	return m
}
