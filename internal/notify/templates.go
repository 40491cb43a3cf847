package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"math"

	"github.com/moekrh-design/kpi-team-system/internal/model"
)

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"pct": func(p float64) string { return fmt.Sprintf("%d%%", int(math.Round(p))) },
}).Parse(`
{{define "header"}}<div style="font-family:Tahoma,Arial;line-height:1.8">{{end}}
{{define "footer"}}<div style="margin-top:12px"><a href="{{.}}">Open task</a></div>
<div style="margin-top:10px;color:#6b7280;font-size:12px">KPI Team</div></div>{{end}}

{{define "assigned"}}{{template "header"}}
<div style="font-size:18px;font-weight:700;margin-bottom:6px">{{.Heading}}</div>
<div><b>Task:</b> {{.Task.Title}}</div>
{{with .Supervisor}}<div><b>Supervisor:</b> {{.}}</div>{{end}}
{{with .Task.DueDate}}<div><b>Due:</b> {{.}}</div>{{end}}
{{with .Task.Description}}<div style="margin-top:6px"><b>Description:</b> {{.}}</div>{{end}}
<div style="margin-top:12px;padding:10px;border:1px solid #e5e7eb;border-radius:10px">
{{if .Main}}<div style="font-weight:700;margin-bottom:6px">Stages</div>
{{if .Stages}}<table style="width:100%;border-collapse:collapse">
<tr><th>Stage</th><th>Assignee</th><th>Progress</th><th>Status</th></tr>
{{range .Stages}}<tr><td>{{.Name}}</td><td>{{or .Assignee "-"}}</td><td>{{pct .Progress}}</td><td>{{.Status}}</td></tr>
{{end}}</table>{{else}}<div style="color:#666">No stages.</div>{{end}}
{{else}}<div style="font-weight:700;margin-bottom:6px">Your part of this task</div>
<ul>{{range .Stages}}<li><b>{{.Name}}</b>: {{pct .Progress}}, {{.Status}}</li>{{end}}</ul>
{{end}}</div>
{{template "footer" .Link}}{{end}}

{{define "stage"}}{{template "header"}}
<h3 style="margin:0 0 8px 0">A stage was assigned to you</h3>
<div><b>Task:</b> {{.Task.Title}}</div>
<div><b>Stage:</b> {{.Stage}}</div>
{{with .Task.DueDate}}<div><b>Task due:</b> {{.}}</div>{{end}}
{{template "footer" .Link}}{{end}}

{{define "due_soon"}}{{template "header"}}
<h3 style="margin:0 0 8px 0">Due date approaching</h3>
<div>Hello {{.Name}},</div>
<div><b>Task:</b> {{.Title}}</div>
<div><b>Due:</b> {{.DueDate}}</div>
{{template "footer" .Link}}{{end}}

{{define "reminder"}}{{template "header"}}
<h3 style="margin:0 0 8px 0">Task reminder</h3>
<div><b>Task:</b> {{.Task.Title}}</div>
{{with .Task.DueDate}}<div><b>Due:</b> {{.}}</div>{{end}}
{{with .Message}}<div style="margin-top:8px"><b>Note:</b> {{.}}</div>{{end}}
{{template "footer" .Link}}{{end}}
`))

type stageRow struct {
	Name     string
	Assignee string
	Progress float64
	Status   model.StageStatus
}

type assignedData struct {
	Heading    string
	Task       model.Task
	Supervisor string
	Main       bool
	Stages     []stageRow
	Link       string
}

type stageData struct {
	Task  model.Task
	Stage string
	Link  string
}

type dueSoonData struct {
	Name    string
	Title   string
	DueDate string
	Link    string
}

type reminderData struct {
	Task    model.Task
	Message string
	Link    string
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", name, err)
	}
	return buf.String(), nil
}
