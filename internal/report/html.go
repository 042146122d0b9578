package report

import (
	"html/template"
	"io"
)

// HTMLReporter renders a self-contained HTML report.
type HTMLReporter struct{}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Meta.Tool}} report</title>
<style>
  body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 2rem; color: #1f2430; }
  h1 { font-size: 1.4rem; }
  h2 { font-size: 1.1rem; margin-top: 2rem; }
  .pass { color: #1a7f37; } .fail { color: #cf222e; }
  table { border-collapse: collapse; width: 100%; margin-top: .5rem; }
  th, td { text-align: left; padding: .35rem .6rem; border-bottom: 1px solid #d8dee4; font-size: .85rem; }
  th { background: #f6f8fa; }
  .sev-critical { color: #a40e26; font-weight: 600; }
  .sev-error { color: #cf222e; }
  .sev-warning { color: #9a6700; }
  .sev-info { color: #0969da; }
  .mono { font-family: ui-monospace, monospace; }
</style>
</head>
<body>
<h1>{{.Meta.Tool}} v{{.Meta.Version}}
  {{if .Status.Pass}}<span class="pass">PASS</span>{{else}}<span class="fail">FAIL</span>{{end}}
</h1>
<p>{{.Meta.Timestamp.Format "2006-01-02 15:04:05 MST"}} — {{.Meta.Repositories}} repositories,
{{.Meta.FilesScanned}} files, {{.Summary.TotalFindings}} findings</p>

{{range .Findings}}
<h2>{{.Repository}}</h2>
<table>
<tr><th>File</th><th>Line</th><th>Severity</th><th>Code</th><th>Message</th><th>Suggestion</th></tr>
{{range $file := .Files}}{{range $file.Findings}}
<tr>
  <td class="mono">{{$file.File}}</td>
  <td>{{.Line}}</td>
  <td class="sev-{{.Severity}}">{{.Severity}}</td>
  <td class="mono">{{.Code}}</td>
  <td>{{.Message}}</td>
  <td>{{.Suggestion}}{{if .Replacement}} ({{.Replacement}}){{end}}</td>
</tr>
{{end}}{{end}}
</table>
{{end}}

<h2>Inventory</h2>
<table>
<tr><th>Kind</th><th>Name</th><th>Source</th><th>Constraint</th><th>Location</th></tr>
{{range .Inventory.Modules}}
<tr><td>module</td><td>{{.Name}}</td><td class="mono">{{.Source}}</td><td class="mono">{{.Constraint}}</td><td class="mono">{{.Repository}}:{{.File}}:{{.Line}}</td></tr>
{{end}}
{{range .Inventory.Providers}}
<tr><td>provider</td><td>{{.Alias}}</td><td class="mono">{{.Source}}</td><td class="mono">{{.Constraint}}</td><td class="mono">{{.Repository}}:{{.File}}:{{.Line}}</td></tr>
{{end}}
{{range .Inventory.Runtimes}}
<tr><td>runtime</td><td>{{.Kind}}</td><td></td><td class="mono">{{.Constraint}}</td><td class="mono">{{.Repository}}:{{.File}}:{{.Line}}</td></tr>
{{end}}
</table>
</body>
</html>
`))

// Write renders the result to w.
func (HTMLReporter) Write(w io.Writer, res *ScanResult) error {
	return htmlTemplate.Execute(w, res)
}
