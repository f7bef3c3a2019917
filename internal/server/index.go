package server

import (
	"html/template"
	"log/slog"
	"net/http"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>levmarfit</title>
	<style>
		body { font-family: sans-serif; margin: 2rem; }
		table { border-collapse: collapse; }
		th, td { border: 1px solid #ccc; padding: 0.4rem 0.8rem; text-align: left; }
		th { background: #f0f0f0; }
		.state-running { color: #0066cc; }
		.state-completed { color: #008800; }
		.state-failed { color: #cc0000; }
	</style>
</head>
<body>
	<h1>Fitting Jobs</h1>
	{{if .}}
	<table>
		<tr>
			<th>ID</th><th>State</th><th>Model</th><th>Data</th>
			<th>Iterations</th><th>Residual</th><th>Error</th>
		</tr>
		{{range .}}
		<tr>
			<td><a href="/api/v1/jobs/{{.ID}}/status">{{.ID}}</a></td>
			<td class="state-{{.State}}">{{.State}}</td>
			<td>{{.Config.Model}}</td>
			<td>{{.Config.DataPath}}</td>
			<td>{{.Iterations}}</td>
			<td>{{printf "%.6g" .BestResidual}}</td>
			<td>{{.Error}}</td>
		</tr>
		{{end}}
	</table>
	{{else}}
	<p>No jobs yet. POST a config to /api/v1/jobs to start one.</p>
	{{end}}
</body>
</html>
`))

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// Only handle exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	jobs := s.jobManager.ListJobs()
	if err := indexTemplate.Execute(w, jobs); err != nil {
		slog.Error("Failed to render index page", "error", err)
	}
}
