package notification

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/smtp"
	"sort"
	"text/template"
	"time"

	"github.com/smukkama/fleet-analytics/internal/protocol"
	"github.com/smukkama/fleet-analytics/pkg/config"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends email notifications
type EmailNotifier struct {
	config *config.SMTPConfig
	send   sendFunc
	logger *slog.Logger
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{config: cfg, send: smtp.SendMail, logger: logger}
}

var anomalyTemplate = template.Must(template.New("anomaly").Parse(`
Fleet Anomaly Detected
======================

Vehicle: {{.VehicleID}}
Observed At: {{.Timestamp.Format "2006-01-02 15:04:05 MST"}}
Flagged Metrics: {{.AnomalyType}}
Confidence (max |z|): {{printf "%.2f" .Confidence}}
Threshold: {{printf "%.2f" .Threshold}}
Source: {{.Source}}
Notification ID: {{.ID}}

Values:
{{range .Values}}  {{.Name}}: {{.Value}}
{{end}}
---
Fleet Analytics Notification System
`))

var rollupTemplate = template.Must(template.New("rollup").Parse(`
Fleet Rollup Completed
======================

Period: {{.Period}}
Window: {{.WindowStart.Format "2006-01-02 15:04"}} to {{.WindowEnd.Format "2006-01-02 15:04"}} UTC
Metrics: {{range $i, $m := .MetricTypes}}{{if $i}}, {{end}}{{$m}}{{end}}
Buckets stored: {{.Buckets}}
Anomalies detected: {{.Anomalies}}

---
Fleet Analytics Notification System
`))

type namedValue struct {
	Name  string
	Value string
}

type anomalyView struct {
	*protocol.AnomalyNotification
	Confidence float64
	Threshold  float64
	Values     []namedValue
}

// SendAnomalyNotification emails a detected anomaly
func (e *EmailNotifier) SendAnomalyNotification(n *protocol.AnomalyNotification) error {
	subject := fmt.Sprintf("Fleet anomaly - vehicle %s (%s)", n.VehicleID, n.AnomalyType)
	body, err := renderAnomaly(n)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return e.sendEmail(subject, body)
}

// SendRollupSummary emails the summary of a completed rollup
func (e *EmailNotifier) SendRollupSummary(msg *protocol.RollupCompleted) error {
	subject := fmt.Sprintf("Fleet rollup %s - %d anomalies", msg.Period, msg.Anomalies)
	var buf bytes.Buffer
	if err := rollupTemplate.Execute(&buf, msg); err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return e.sendEmail(subject, buf.String())
}

func renderAnomaly(n *protocol.AnomalyNotification) (string, error) {
	view := anomalyView{
		AnomalyNotification: n,
		Confidence:          float64(n.ConfidenceScore),
		Threshold:           float64(n.Threshold),
	}
	names := make([]string, 0, len(n.Values))
	for name := range n.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := n.Values[name]
		s := "n/a"
		if v.Valid() {
			s = fmt.Sprintf("%.2f", float64(v))
		}
		view.Values = append(view.Values, namedValue{Name: name, Value: s})
	}

	var buf bytes.Buffer
	if err := anomalyTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	// Skip sending if SMTP is not configured
	if e.config.Username == "" || e.config.Password == "" {
		e.logger.Info("notification: SMTP not configured, skipping email", "subject", subject)
		return nil
	}

	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", e.config.To)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := e.send(addr, auth, e.config.From, []string{e.config.To}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.Info("notification: email sent", "subject", subject)
	return nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	return nil
}
