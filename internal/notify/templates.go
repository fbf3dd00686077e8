package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/wolfman30/clinic-crm/internal/appointments"
	"github.com/wolfman30/clinic-crm/internal/patients"
)

// Template names, also used as the metrics label.
const (
	TemplateAppointmentRequested = "appointment_requested"
	TemplateAppointmentConfirmed = "appointment_confirmed"
	TemplateAppointmentStatus    = "appointment_status"
	TemplatePrescription         = "prescription_reminder"
)

type emailTemplate struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

const htmlFooter = `
<div style="margin-top:32px;padding-top:16px;border-top:1px solid #e5e7eb">
  <p style="margin:0"><strong>{{.Clinic}}</strong></p>
  {{if .ReplyTo}}<p style="margin:0;color:#6b7280">Email: {{.ReplyTo}}</p>{{end}}
</div>`

var templateSources = map[string]struct{ subject, text, html string }{
	TemplateAppointmentRequested: {
		subject: `Appointment Request Received - {{.Clinic}}`,
		text: `Dear {{.Name}},

Thank you for your interest in scheduling an appointment with {{.Clinic}}.
We have received your request:

Name: {{.Name}}
Email: {{.Email}}
Phone: {{.Phone}}
{{if .Message}}Message: {{.Message}}
{{end}}
Next steps:
1. Choose your preferred date and time from the calendar
2. Complete the booking process
3. Receive a final confirmation email
4. Arrive 10 minutes before your scheduled time
`,
		html: `<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h1 style="color:#2563eb">Appointment Request Received</h1>
<p>Dear {{.Name}},</p>
<p>Thank you for your interest in scheduling an appointment with {{.Clinic}}. We have received your request:</p>
<div style="background-color:#f3f4f6;padding:16px;border-radius:8px;margin:16px 0">
  <p><strong>Name:</strong> {{.Name}}</p>
  <p><strong>Email:</strong> {{.Email}}</p>
  <p><strong>Phone:</strong> {{.Phone}}</p>
  {{if .Message}}<p><strong>Message:</strong> {{.Message}}</p>{{end}}
</div>
<p><strong>Next Steps:</strong></p>
<ol>
  <li>Choose your preferred date and time from the calendar</li>
  <li>Complete the booking process</li>
  <li>Receive final confirmation email</li>
  <li>Arrive 10 minutes before your scheduled time</li>
</ol>` + htmlFooter + `
</div>`,
	},
	TemplateAppointmentConfirmed: {
		subject: `Appointment Confirmed - {{.Clinic}}`,
		text: `Dear {{.Name}},

Your appointment with {{.Clinic}} has been scheduled.

Date: {{.Day}}
Time: {{.Clock}}
Type: {{.Type}}
{{if .Notes}}Notes: {{.Notes}}
{{end}}
Please arrive 10 minutes early and bring a valid ID. If you need to cancel or
reschedule, contact us at least 24 hours in advance.
`,
		html: `<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h1 style="color:#059669">Appointment Confirmed</h1>
<p>Dear {{.Name}},</p>
<p>Your appointment with {{.Clinic}} has been successfully scheduled.</p>
<div style="background-color:#ecfdf5;padding:16px;border-radius:8px;margin:16px 0;border-left:4px solid #059669">
  <p><strong>Date:</strong> {{.Day}}</p>
  <p><strong>Time:</strong> {{.Clock}}</p>
  <p><strong>Type:</strong> {{.Type}}</p>
  {{if .Notes}}<p><strong>Notes:</strong> {{.Notes}}</p>{{end}}
</div>
<ul>
  <li>Please arrive 10 minutes before your scheduled time</li>
  <li>Bring a valid ID and any relevant medical documents</li>
  <li>If you need to cancel or reschedule, please contact us at least 24 hours in advance</li>
</ul>` + htmlFooter + `
</div>`,
	},
	TemplateAppointmentStatus: {
		subject: `Appointment {{.StatusTitle}} - {{.Clinic}}`,
		text: `Dear {{.Name}},

Your appointment{{if .Day}} scheduled for {{.Day}}{{if .Clock}} at {{.Clock}}{{end}}{{end}} has been {{.Status}}.
{{if .Cancelled}}If you would like a new appointment, please visit our booking page or contact us.{{else}}We look forward to seeing you.{{end}}
`,
		html: `<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h1 style="color:{{if .Cancelled}}#dc2626{{else}}#059669{{end}}">Appointment {{.StatusTitle}}</h1>
<p>Dear {{.Name}},</p>
<p>Your appointment{{if .Day}} scheduled for <strong>{{.Day}}</strong>{{if .Clock}} at <strong>{{.Clock}}</strong>{{end}}{{end}} has been <strong>{{.Status}}</strong>.</p>
{{if .Cancelled}}<p>If you would like to schedule a new appointment, please visit our booking page or contact us directly.</p>{{else}}<p>We look forward to seeing you.</p>{{end}}` + htmlFooter + `
</div>`,
	},
	TemplatePrescription: {
		subject: `Prescription Reminder - {{.Clinic}}`,
		text: `Dear {{.Name}},

This is a reminder about your prescription from {{.Clinic}}.
{{if .Start}}Start date: {{.Start}}
{{end}}{{if .End}}End date: {{.End}}
{{end}}
Prescribed medicines:
{{range .Medicines}}- {{.Name}}{{if .Timings}} ({{.Timings}}){{end}}
{{end}}{{if .Revisit}}
Please book a follow-up visit when the course ends.
{{end}}`,
		html: `<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h1 style="color:#7c3aed">Prescription Reminder</h1>
<p>Dear {{.Name}},</p>
<p>This is a reminder about your current prescription from {{.Clinic}}:</p>
{{if or .Start .End}}<div style="background-color:#f5f3ff;padding:16px;border-radius:8px;margin:16px 0">
  {{if .Start}}<p>Start Date: {{.Start}}</p>{{end}}
  {{if .End}}<p>End Date: {{.End}}</p>{{end}}
</div>{{end}}
<div style="background-color:#f8fafc;padding:16px;border-radius:8px;margin:16px 0">
  <h3 style="margin-top:0">Prescribed Medicines:</h3>
  {{range .Medicines}}<div style="margin-bottom:12px"><strong>{{.Name}}</strong>{{if .Timings}} <span>{{.Timings}}</span>{{end}}</div>{{end}}
</div>
{{if .Revisit}}<p><strong>A follow-up visit is required</strong> once the course is complete.</p>{{end}}
<p>Please take your medicines as prescribed and complete the full course.</p>` + htmlFooter + `
</div>`,
	},
}

// Renderer turns domain objects into ready-to-send emails.
type Renderer struct {
	clinic    string
	replyTo   string
	loc       *time.Location
	templates map[string]emailTemplate
}

// NewRenderer parses the built-in templates. clinic is the sender name shown
// in subjects and footers.
func NewRenderer(clinic, replyTo string, loc *time.Location) (*Renderer, error) {
	if strings.TrimSpace(clinic) == "" {
		clinic = defaultFromName
	}
	if loc == nil {
		loc = time.UTC
	}
	parsed := make(map[string]emailTemplate, len(templateSources))
	for name, src := range templateSources {
		subject, err := texttemplate.New(name + ".subject").Parse(src.subject)
		if err != nil {
			return nil, fmt.Errorf("notify: parse %s subject: %w", name, err)
		}
		text, err := texttemplate.New(name + ".text").Parse(src.text)
		if err != nil {
			return nil, fmt.Errorf("notify: parse %s text: %w", name, err)
		}
		html, err := htmltemplate.New(name + ".html").Parse(src.html)
		if err != nil {
			return nil, fmt.Errorf("notify: parse %s html: %w", name, err)
		}
		parsed[name] = emailTemplate{subject: subject, text: text, html: html}
	}
	return &Renderer{clinic: clinic, replyTo: replyTo, loc: loc, templates: parsed}, nil
}

type appointmentData struct {
	Clinic, ReplyTo      string
	Name, Email, Phone   string
	Message, Notes, Type string
	Day, Clock           string
	Status, StatusTitle  string
	Cancelled            bool
}

type medicineData struct {
	Name, Timings string
}

type prescriptionData struct {
	Clinic, ReplyTo string
	Name            string
	Start, End      string
	Medicines       []medicineData
	Revisit         bool
}

// AppointmentRequested renders the acknowledgement sent right after booking.
func (r *Renderer) AppointmentRequested(appt *appointments.Appointment) (EmailMessage, error) {
	return r.render(TemplateAppointmentRequested, appt.PatientInfo.Email, appt.PatientInfo.Name, r.appointmentData(appt))
}

// AppointmentConfirmed renders the confirmation for a scheduled slot.
func (r *Renderer) AppointmentConfirmed(appt *appointments.Appointment) (EmailMessage, error) {
	return r.render(TemplateAppointmentConfirmed, appt.PatientInfo.Email, appt.PatientInfo.Name, r.appointmentData(appt))
}

// AppointmentStatus renders a status change (cancelled, completed, moved).
func (r *Renderer) AppointmentStatus(appt *appointments.Appointment) (EmailMessage, error) {
	return r.render(TemplateAppointmentStatus, appt.PatientInfo.Email, appt.PatientInfo.Name, r.appointmentData(appt))
}

// Prescription renders the prescription reminder for a visit.
func (r *Renderer) Prescription(p *patients.Patient, visit *patients.Visit) (EmailMessage, error) {
	if visit == nil || visit.Prescription == nil {
		return EmailMessage{}, fmt.Errorf("notify: visit has no prescription")
	}
	rx := visit.Prescription
	data := prescriptionData{
		Clinic:  r.clinic,
		ReplyTo: r.replyTo,
		Name:    p.FullName,
		Revisit: rx.RevisitRequired,
	}
	if rx.StartDate != nil {
		data.Start = rx.StartDate.In(r.loc).Format("Jan 2, 2006")
	}
	if rx.EndDate != nil {
		data.End = rx.EndDate.In(r.loc).Format("Jan 2, 2006")
	}
	for _, m := range rx.Medicines {
		data.Medicines = append(data.Medicines, medicineData{Name: m.Name, Timings: timingLabel(m.Timings)})
	}
	return r.render(TemplatePrescription, p.Email, p.FullName, data)
}

func (r *Renderer) appointmentData(appt *appointments.Appointment) appointmentData {
	data := appointmentData{
		Clinic:    r.clinic,
		ReplyTo:   r.replyTo,
		Name:      appt.PatientInfo.Name,
		Email:     appt.PatientInfo.Email,
		Phone:     appt.PatientInfo.Phone,
		Message:   appt.Message,
		Notes:     appt.Notes,
		Type:      typeLabel(appt.Type),
		Clock:     appt.Time,
		Status:    string(appt.Status),
		Cancelled: appt.Status == appointments.StatusCancelled,
	}
	if data.Status != "" {
		data.StatusTitle = strings.ToUpper(data.Status[:1]) + data.Status[1:]
	}
	if appt.Date != nil {
		data.Day = appt.Date.In(r.loc).Format("Monday, January 2, 2006")
	}
	return data
}

func (r *Renderer) render(name, to, toName string, data any) (EmailMessage, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return EmailMessage{}, fmt.Errorf("notify: unknown template %q", name)
	}
	var subject, text, html bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render %s subject: %w", name, err)
	}
	if err := tmpl.text.Execute(&text, data); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render %s text: %w", name, err)
	}
	if err := tmpl.html.Execute(&html, data); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render %s html: %w", name, err)
	}
	return EmailMessage{
		To:       to,
		ToName:   toName,
		Subject:  strings.TrimSpace(subject.String()),
		Body:     text.String(),
		HTML:     html.String(),
		Template: name,
	}, nil
}

func typeLabel(t appointments.Type) string {
	switch t {
	case appointments.TypeFollowUp:
		return "Follow-up"
	case appointments.TypeConsultation:
		return "Consultation"
	case appointments.TypeNew:
		return "New patient"
	default:
		return string(t)
	}
}

func timingLabel(t patients.MedicineTimings) string {
	var parts []string
	if t.Morning {
		parts = append(parts, "Morning")
	}
	if t.Afternoon {
		parts = append(parts, "Afternoon")
	}
	if t.Evening {
		parts = append(parts, "Evening")
	}
	return strings.Join(parts, ", ")
}
