package server

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/morezero/beanserver/pkg/admin"
)

// Health statuses and per-check results.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	CheckOK       = "ok"
	CheckFailed   = "failed"
	CheckDisabled = "disabled"
)

// HealthChecks holds per-dependency results.
type HealthChecks struct {
	Database string `json:"database"`
	Comms    string `json:"comms"`
}

// HealthOutput is the /health response.
type HealthOutput struct {
	Status      string       `json:"status"`
	Checks      HealthChecks `json:"checks"`
	Deployments int          `json:"deployments"`
	Uptime      string       `json:"uptime"`
	Timestamp   string       `json:"timestamp"`
}

// Health checks the configured dependencies. Dependencies that are not configured
// are reported as disabled and do not make the server unhealthy.
func (s *Server) Health(ctx context.Context) *HealthOutput {
	checks := HealthChecks{Database: CheckDisabled, Comms: CheckDisabled}
	if s.pool != nil {
		checks.Database = CheckOK
		if err := s.pool.Ping(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - database ping: %v", logPrefix, err))
			checks.Database = CheckFailed
		}
	}
	if s.nc != nil {
		checks.Comms = CheckOK
		if !s.nc.IsConnected() {
			checks.Comms = CheckFailed
		}
	}

	status := StatusHealthy
	if checks.Database == CheckFailed || checks.Comms == CheckFailed {
		status = StatusUnhealthy
	}
	return &HealthOutput{
		Status:      status,
		Checks:      checks,
		Deployments: s.reg.Len(),
		Uptime:      time.Since(s.startedAt).Truncate(time.Second).String(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// homePageTemplate is the HTML for the server home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Beanserver</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>Beanserver</h1>
  <p class="meta">Protocol address {{.Address}}. Admin JSON-RPC at /rpc.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Database: <span class="stat">{{.Health.Checks.Database}}</span></p>
    <p>COMMS: <span class="stat">{{.Health.Checks.Comms}}</span></p>
    <p>Uptime: {{.Health.Uptime}}</p>
  </section>

  <section>
    <h2>Deployments</h2>
    {{if not .Deployments}}
    <p>No deployments registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Index</th><th>Name</th><th>Kind</th><th>Version</th><th>Home</th><th>Remote</th><th>Primary key</th></tr>
      </thead>
      <tbody>
        {{range .Deployments}}
        <tr>
          <td>{{.Index}}</td>
          <td>{{.Name}}</td>
          <td>{{.Kind}}</td>
          <td>{{.Version}}</td>
          <td>{{.HomeInterface}}</td>
          <td>{{.RemoteInterface}}</td>
          <td>{{.PrimaryKeyType}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

type homeData struct {
	Address     string
	Health      *HealthOutput
	Deployments []admin.DeploymentInfo
}

// handleHome returns an HTTP handler for the home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{Address: s.cfg.Advertise(), Health: s.Health(ctx)}
		for _, e := range s.reg.List() {
			data.Deployments = append(data.Deployments, admin.InfoFor(e))
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
