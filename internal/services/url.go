package services

import (
	"net"
	"net/url"
	"strings"
)

var cloudHostSuffixes = []string{".atlassian.net", ".jira.com", ".jira-dev.com"}

// IsCloudURL reports whether raw points at an Atlassian Cloud site.
// Loopback, private and other literal IP hosts are never cloud.
func IsCloudURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || host == "localhost" || net.ParseIP(host) != nil {
		return false
	}
	if host == "api.atlassian.com" {
		return true
	}
	for _, suffix := range cloudHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

func deploymentOf(raw string) Deployment {
	if raw == "" {
		return DeploymentNone
	}
	if IsCloudURL(raw) {
		return DeploymentCloud
	}
	return DeploymentServer
}
