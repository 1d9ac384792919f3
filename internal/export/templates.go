package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var planTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}
	planTemplate = template.Must(template.New("care_plan").Funcs(funcMap).Parse(planTemplateHTML))
}

// TemplateData holds data for care plan template rendering
type TemplateData struct {
	Title        string
	DisplayID    string
	Status       string
	ClientName   string
	ProviderName string
	BranchName   string
	UpdatedAt    time.Time
	Staff        []TemplateStaff
	Visits       []TemplateVisit
	Risks        []TemplateRisk
}

// TemplateStaff holds one assigned staff member for the template
type TemplateStaff struct {
	Name      string
	Role      string
	IsPrimary bool
}

// TemplateVisit holds one scheduled visit for the template
type TemplateVisit struct {
	Start  time.Time
	End    time.Time
	Staff  string
	Status string
	Notes  string
}

// TemplateRisk holds one risk assessment for the template
type TemplateRisk struct {
	Category string
	Severity string
	Summary  string
}

// RenderPlanHTML renders the care plan template with provided data
func RenderPlanHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := planTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const planTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #0c7d6f; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; color: #0c7d6f; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #ddd; padding: 0.5rem; text-align: left; }
    th { background: #f5f5f5; }
    .primary { font-weight: bold; }
    .severity-high, .severity-critical { color: #b00020; font-weight: bold; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">
    {{.DisplayID}} | {{.Status}} | {{.BranchName}} | Updated {{formatDate .UpdatedAt "Jan 2, 2006"}}
  </div>

  <h2>Client</h2>
  <p>{{.ClientName}}</p>

  <h2>Care Provider</h2>
  <p>{{.ProviderName}}</p>

  {{if .Staff}}
  <h2>Assigned Staff</h2>
  <table>
    <tr><th>Name</th><th>Role</th><th>Primary</th></tr>
    {{range .Staff}}
    <tr{{if .IsPrimary}} class="primary"{{end}}><td>{{.Name}}</td><td>{{.Role}}</td><td>{{if .IsPrimary}}Yes{{else}}No{{end}}</td></tr>
    {{end}}
  </table>
  {{end}}

  {{if .Visits}}
  <h2>Scheduled Visits</h2>
  <table>
    <tr><th>Start</th><th>End</th><th>Staff</th><th>Status</th><th>Notes</th></tr>
    {{range .Visits}}
    <tr><td>{{formatDate .Start "Jan 2 15:04"}}</td><td>{{formatDate .End "Jan 2 15:04"}}</td><td>{{.Staff}}</td><td>{{.Status}}</td><td>{{.Notes}}</td></tr>
    {{end}}
  </table>
  {{end}}

  {{if .Risks}}
  <h2>Risk Assessments</h2>
  <table>
    <tr><th>Category</th><th>Severity</th><th>Summary</th></tr>
    {{range .Risks}}
    <tr><td>{{.Category}}</td><td class="severity-{{lower .Severity}}">{{.Severity}}</td><td>{{.Summary}}</td></tr>
    {{end}}
  </table>
  {{end}}
</body>
</html>`
