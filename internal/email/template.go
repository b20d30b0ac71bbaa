package email

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/k3a/html2text"

	"github.com/jwalitptl/herd-api/internal/model"
)

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
}

// Text returns the plain-text alternative of the HTML body.
func (m Message) Text() string {
	return html2text.HTML2Text(m.HTML)
}

var reminderTmpl = template.Must(template.New("reminder").Parse(`<div style="font-family:Segoe UI,Arial,sans-serif;font-size:14px;color:#222">
<h2>{{.Heading}}</h2>
<ul>
<li><b>Animal:</b> {{.Animal}}</li>
<li><b>Kind:</b> {{.Kind}}</li>
<li><b>Target date:</b> {{.TargetDate}}</li>
<li><b>State:</b> {{.State}}</li>
{{- if .Trigger}}
<li><b>Trigger:</b> {{.Trigger}}</li>
{{- end}}
{{- if .Note}}
<li><b>Notes:</b> {{.Note}}</li>
{{- end}}
</ul>
<p>Herd Control</p>
</div>`))

var testTmpl = template.Must(template.New("test").Parse(`<p>Test email for alert #{{.ID}}.</p>
<p>Target date: {{.TargetDate}}</p>`))

type reminderData struct {
	Heading    string
	Animal     string
	Kind       string
	TargetDate string
	State      model.AlertState
	Trigger    string
	Note       string
}

func animalLabel(a *model.Alert) string {
	if a.AnimalName != nil && *a.AnimalName != "" {
		return a.Subject() + " - " + *a.AnimalName
	}
	return a.Subject()
}

// RenderReminder builds the reminder for one threshold. Each threshold has
// its own subject and heading.
func RenderReminder(a *model.Alert, t model.Threshold) (Message, error) {
	var subject, heading string
	kind := a.Kind.Label()
	switch t {
	case model.Threshold15:
		subject = fmt.Sprintf("[Alert] %s in 15 days - %s", kind, a.Subject())
		heading = "15-day reminder"
	case model.Threshold7:
		subject = fmt.Sprintf("[Alert] %s in 7 days - %s", kind, a.Subject())
		heading = "7-day reminder"
	case model.Threshold0:
		subject = fmt.Sprintf("[Alert] TODAY! %s - %s", kind, a.Subject())
		heading = "This alert is due TODAY!"
	default:
		subject = fmt.Sprintf("[Alert] %s - %s", kind, a.Subject())
		heading = "Alert details"
	}

	var buf bytes.Buffer
	err := reminderTmpl.Execute(&buf, reminderData{
		Heading:    heading,
		Animal:     animalLabel(a),
		Kind:       kind,
		TargetDate: a.TargetDate.String(),
		State:      a.State,
		Trigger:    a.Trigger,
		Note:       a.Note,
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render reminder: %w", err)
	}
	return Message{Subject: subject, HTML: buf.String()}, nil
}

// RenderTest builds the message sent by the test-email endpoint.
func RenderTest(a *model.Alert) (Message, error) {
	var buf bytes.Buffer
	err := testTmpl.Execute(&buf, struct {
		ID         int64
		TargetDate string
	}{a.ID, a.TargetDate.String()})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render test email: %w", err)
	}
	return Message{
		Subject: fmt.Sprintf("[TEST] Alert %s - %s", a.Kind.Label(), a.Subject()),
		HTML:    buf.String(),
	}, nil
}
