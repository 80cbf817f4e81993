package serving

import "fmt"

// ServingURLs generates admin-API endpoints on the serving system.
type ServingURLs struct {
	ServerURL string
}

// StopIntake generates the URL that makes the serving system refuse new requests.
func (s ServingURLs) StopIntake() string {
	return fmt.Sprintf("%s/admin/intake/stop", s.ServerURL)
}

// ResumeIntake generates the URL that clears the refuse-new-requests flag.
func (s ServingURLs) ResumeIntake() string {
	return fmt.Sprintf("%s/admin/intake/resume", s.ServerURL)
}

// StopAllSessions generates the URL for the best-effort per-session stop
// issued before the backend is terminated.
func (s ServingURLs) StopAllSessions() string {
	return fmt.Sprintf("%s/admin/sessions/stop", s.ServerURL)
}

func (s ServingURLs) SwitchModel() string {
	return fmt.Sprintf("%s/admin/model", s.ServerURL)
}

func (s ServingURLs) SetContextWindow() string {
	return fmt.Sprintf("%s/admin/context", s.ServerURL)
}

func (s ServingURLs) SetRAGTopK() string {
	return fmt.Sprintf("%s/admin/rag/top-k", s.ServerURL)
}

func (s ServingURLs) DisableTools() string {
	return fmt.Sprintf("%s/admin/tools/disable", s.ServerURL)
}

func (s ServingURLs) EnableAllTools() string {
	return fmt.Sprintf("%s/admin/tools/enable-all", s.ServerURL)
}
