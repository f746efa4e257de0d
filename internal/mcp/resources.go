package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kensa/internal/services"
)

const availabilityURI = "kensa://services/availability"

func (s *Server) registerResources() {
	// kensa://services/availability: which backends this server can reach and how.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			availabilityURI,
			"Service Availability",
			mcplib.WithResourceDescription("Configured backend services, their authentication modes, and whether writes are allowed"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAvailability,
	)
}

// serviceStatus is one entry of the availability resource.
type serviceStatus struct {
	Available  bool   `json:"available"`
	Mode       string `json:"auth_mode"`
	Deployment string `json:"deployment,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// availabilityReport is the body of the availability resource.
type availabilityReport struct {
	Services    map[services.Service]serviceStatus `json:"services"`
	ZephyrState string                             `json:"zephyr_state"`
	ReadOnly    bool                               `json:"read_only"`
	Tools       []string                           `json:"tools"`
	Version     string                             `json:"version"`
}

func (s *Server) availabilityReport() availabilityReport {
	report := availabilityReport{
		Services:    make(map[services.Service]serviceStatus, len(services.All)),
		ZephyrState: s.services.Zephyr().String(),
		ReadOnly:    s.readOnly,
		Tools:       s.Tools(),
		Version:     s.version,
	}
	for _, svc := range services.All {
		res := s.services.Resolution(svc)
		st := serviceStatus{Available: res.Usable, Mode: res.Mode.String(), Reason: res.Reason}
		if res.Deployment != services.DeploymentNone {
			st.Deployment = res.Deployment.String()
		}
		report.Services[svc] = st
	}
	return report
}

func (s *Server) handleAvailability(_ context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(s.availabilityReport(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal availability: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      availabilityURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
