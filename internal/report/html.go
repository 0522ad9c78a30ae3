package report

import (
	"html/template"
	"strings"
	"time"
)

type tracebackData struct {
	Subject     string
	Message     string
	UserInfo    string
	Stack       string
	RequestRepr string
	At          time.Time
}

var tracebackTmpl = template.Must(template.New("traceback").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body style="font-family: sans-serif; margin: 1em;">
<h2 style="background:#a33; color:#fff; padding:.4em .6em;">{{.Subject}}</h2>
<p><strong>Generated:</strong> {{.At.Format "2006-01-02 15:04:05 MST"}}<br>
<strong>Triggered by:</strong> {{.UserInfo}}</p>
<h3>Message</h3>
<pre style="background:#eee; padding:.6em; white-space:pre-wrap;">{{.Message}}</pre>
<h3>Traceback</h3>
<pre style="background:#eee; padding:.6em; white-space:pre-wrap;">{{.Stack}}</pre>
<h3>Request</h3>
<pre style="background:#eee; padding:.6em; white-space:pre-wrap;">{{.RequestRepr}}</pre>
</body>
</html>
`))

func renderTracebackHTML(d tracebackData) (string, error) {
	var b strings.Builder
	if err := tracebackTmpl.Execute(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}
