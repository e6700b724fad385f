package api

import "braindrived/internal/ports"

// ServiceStatus is the externally visible state of one supervised service.
type ServiceStatus struct {
	Role     string `json:"role"`
	State    string `json:"state"`
	Port     int    `json:"port"`
	ExitCode int    `json:"exit_code,omitempty"`
}

// StatusResponse reports install progress flags and service states.
type StatusResponse struct {
	Installing            bool            `json:"installing"`
	RuntimeProvisioned    bool            `json:"runtime_provisioned"`
	EnvironmentReady      bool            `json:"environment_ready"`
	RepoCloned            bool            `json:"repo_cloned"`
	DependenciesInstalled bool            `json:"dependencies_installed"`
	Complete              bool            `json:"complete"`
	Ports                 ports.Pair      `json:"ports"`
	Services              []ServiceStatus `json:"services"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
