package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/config"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service handles sending notifications via various channels
type Service struct {
	config *config.Config
	client *resty.Client
	sender func(m *gomail.Message) error
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

var levelColors = map[models.Level]string{
	models.LevelHigh:   "D13438",
	models.LevelMedium: "FF8C00",
	models.LevelLow:    "0078D4",
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	s := &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
	s.sender = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
		return d.DialAndSend(m)
	}
	return s
}

// Enabled reports whether any delivery channel is configured
func (s *Service) Enabled() bool {
	return s.config.TeamsWebhookURL != "" || len(s.config.NotificationEmails) > 0
}

// SendReport sends a report via configured notification channels
func (s *Service) SendReport(report *models.Report) error {
	if !s.Enabled() {
		logrus.Debug("No notification channel configured, report not sent")
		return nil
	}

	subject := fmt.Sprintf("Sentiment Report - %s (%d records)", titleCase(report.Period), report.Statistics.Total)

	htmlBody, err := buildReportHTML(report)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	return s.deliver("report", buildReportTeamsMessage(report), subject, buildReportText(report), htmlBody)
}

// SendAlert sends an immediate notification for a newly raised alert
func (s *Service) SendAlert(alert *models.AlertRecord) error {
	if !s.Enabled() {
		logrus.WithField("alert_id", alert.ID).Debug("No notification channel configured, alert not sent")
		return nil
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Level)), alert.RuleName)
	text := buildAlertText(alert)

	return s.deliver("alert", buildAlertTeamsMessage(alert), subject, text, "")
}

func (s *Service) deliver(kind string, teams *TeamsMessage, subject, text, html string) error {
	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(teams); err != nil {
			logrus.Errorf("Failed to send Teams %s: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Infof("Successfully sent %s to Teams", kind)
		}
	}

	if len(s.config.NotificationEmails) > 0 {
		if err := s.sendEmail(subject, text, html); err != nil {
			logrus.Errorf("Failed to send %s email: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Infof("Successfully sent %s via email", kind)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendToTeams(message *TeamsMessage) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) sendEmail(subject, text, html string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmails...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	if html != "" {
		m.AddAlternative("text/html", html)
	}

	if err := s.sender(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func buildAlertTeamsMessage(alert *models.AlertRecord) *TeamsMessage {
	facts := []TeamsFact{
		{Name: "Level", Value: string(alert.Level)},
		{Name: "Rule", Value: alert.RuleName},
		{Name: "Content", Value: fmt.Sprintf("%s (%s)", alert.ContentID, alert.ContentType)},
		{Name: "Raised", Value: alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
	}

	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: levelColors[alert.Level],
		Title:      fmt.Sprintf("Sentiment Alert - %s", alert.RuleName),
		Text:       alert.Reason,
		Sections: []TeamsSection{{
			ActivityTitle: "Details",
			Facts:         facts,
			Markdown:      true,
		}},
	}

	if alert.Suggestion != "" {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Suggested response",
			ActivityText:  alert.Suggestion,
			Markdown:      true,
		})
	}

	return message
}

func buildAlertText(alert *models.AlertRecord) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Sentiment Alert - %s\n", alert.RuleName))
	text.WriteString(fmt.Sprintf("Level: %s\n", alert.Level))
	text.WriteString(fmt.Sprintf("Content: %s (%s)\n", alert.ContentID, alert.ContentType))
	text.WriteString(fmt.Sprintf("Raised: %s\n\n", alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC")))
	text.WriteString(alert.Reason)
	text.WriteString("\n")

	if alert.Suggestion != "" {
		text.WriteString("\nSuggested response:\n")
		text.WriteString(alert.Suggestion)
		text.WriteString("\n")
	}

	return text.String()
}

func buildReportTeamsMessage(report *models.Report) *TeamsMessage {
	stats := report.Statistics
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("Sentiment Report - %s", titleCase(report.Period)),
		Text:    fmt.Sprintf("%d records, %d open alerts", stats.Total, len(report.OpenAlerts)),
	}

	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts: []TeamsFact{
			{Name: "Total Records", Value: fmt.Sprintf("%d", stats.Total)},
			{Name: "Media / Social", Value: fmt.Sprintf("%d / %d", stats.MediaCount, stats.SocialCount)},
			{Name: "Today / Yesterday", Value: fmt.Sprintf("%d / %d", stats.TodayCount, stats.YesterdayCount)},
			{Name: "Positive", Value: fmt.Sprintf("%d", stats.SentimentDistribution.Positive)},
			{Name: "Neutral", Value: fmt.Sprintf("%d", stats.SentimentDistribution.Neutral)},
			{Name: "Negative", Value: fmt.Sprintf("%d", stats.SentimentDistribution.Negative)},
			{Name: "Generated", Value: report.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
		},
		Markdown: true,
	})

	if len(report.HotKeywords) > 0 {
		words := make([]string, 0, len(report.HotKeywords))
		for _, k := range report.HotKeywords {
			words = append(words, fmt.Sprintf("%s (%d)", k.Word, k.Count))
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Hot Keywords",
			ActivityText:  strings.Join(words, ", "),
			Markdown:      true,
		})
	}

	if len(report.OpenAlerts) > 0 {
		var lines []string
		limit := 5
		if len(report.OpenAlerts) < limit {
			limit = len(report.OpenAlerts)
		}
		for _, alert := range report.OpenAlerts[:limit] {
			lines = append(lines, fmt.Sprintf("**[%s] %s** - %s", alert.Level, alert.RuleName, alert.Reason))
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Open Alerts",
			ActivityText:  strings.Join(lines, "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

var reportTemplate = template.Must(template.New("email").Funcs(template.FuncMap{
	"title":    titleCase,
	"truncate": truncate,
}).Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Sentiment Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #0078d4; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .item { border-left: 4px solid #0078d4; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .item-meta { color: #666; font-size: 0.9em; }
        .high { border-left-color: #d13438; }
        .medium { border-left-color: #ff8c00; }
        .negative { border-left-color: #d13438; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Sentiment Report</h1>
        <p>{{.Period | title}} report generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM MST"}}</p>
    </div>

    <div class="summary">
        <h2>Summary</h2>
        <p><strong>Total Records:</strong> {{.Statistics.Total}} ({{.Statistics.MediaCount}} media, {{.Statistics.SocialCount}} social)</p>
        <p><strong>Today / Yesterday:</strong> {{.Statistics.TodayCount}} / {{.Statistics.YesterdayCount}}</p>
        <p><strong>Positive:</strong> {{.Statistics.SentimentDistribution.Positive}}
           <strong>Neutral:</strong> {{.Statistics.SentimentDistribution.Neutral}}
           <strong>Negative:</strong> {{.Statistics.SentimentDistribution.Negative}}</p>
        {{if .TopSources}}<p><strong>Top Sources:</strong> {{range $i, $s := .TopSources}}{{if $i}}, {{end}}{{$s}}{{end}}</p>{{end}}
    </div>

    {{if .OpenAlerts}}
    <h2>Open Alerts</h2>
    {{range .OpenAlerts}}
        <div class="item {{.Level}}">
            <strong>{{.RuleName}}</strong>
            <div class="item-meta">{{.Level}} | {{.Status}} | {{.CreatedAt.Format "Jan 2, 2006 15:04"}}</div>
            <p>{{.Reason}}</p>
            {{if .Suggestion}}<p><em>{{.Suggestion}}</em></p>{{end}}
        </div>
    {{end}}
    {{end}}

    {{if .NegativeRecords}}
    <h2>Most Negative Content</h2>
    {{range .NegativeRecords}}
        <div class="item negative">
            <div class="item-meta">{{.Origin}} | {{.PublishedAt.Format "Jan 2, 2006"}}{{if .Enrichment}} | Score: {{.Enrichment.SentimentScore}}{{end}}</div>
            <p>{{truncate .Content 200}}</p>
        </div>
    {{end}}
    {{end}}

    <hr>
    <p><small>This report was generated automatically by the sentiment analysis system.</small></p>
</body>
</html>
`))

func buildReportHTML(report *models.Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildReportText(report *models.Report) string {
	var text strings.Builder
	stats := report.Statistics

	text.WriteString(fmt.Sprintf("Sentiment Report - %s\n", titleCase(report.Period)))
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")))

	text.WriteString("SUMMARY\n")
	text.WriteString("=======\n")
	text.WriteString(fmt.Sprintf("Total Records: %d (%d media, %d social)\n", stats.Total, stats.MediaCount, stats.SocialCount))
	text.WriteString(fmt.Sprintf("Today: %d | Yesterday: %d | Last %d days: %d\n", stats.TodayCount, stats.YesterdayCount, stats.WindowDays, stats.WindowCount))
	text.WriteString(fmt.Sprintf("Positive: %d | Neutral: %d | Negative: %d | Unanalyzed: %d\n",
		stats.SentimentDistribution.Positive, stats.SentimentDistribution.Neutral,
		stats.SentimentDistribution.Negative, stats.Unanalyzed))

	if len(report.TopSources) > 0 {
		text.WriteString(fmt.Sprintf("Top Sources: %s\n", strings.Join(report.TopSources, ", ")))
	}

	if len(report.HotKeywords) > 0 {
		text.WriteString("\nHOT KEYWORDS\n")
		text.WriteString("============\n")
		for i, k := range report.HotKeywords {
			text.WriteString(fmt.Sprintf("%d. %s (%d records)\n", i+1, k.Word, k.Count))
		}
	}

	if len(report.OpenAlerts) > 0 {
		text.WriteString("\nOPEN ALERTS\n")
		text.WriteString("===========\n")
		for i, alert := range report.OpenAlerts {
			text.WriteString(fmt.Sprintf("\n%d. [%s] %s\n", i+1, alert.Level, alert.RuleName))
			text.WriteString(fmt.Sprintf("   %s\n", alert.Reason))
			text.WriteString(fmt.Sprintf("   Status: %s | Raised: %s\n", alert.Status, alert.CreatedAt.Format("Jan 2, 2006 15:04")))
		}
	}

	if len(report.NegativeRecords) > 0 {
		text.WriteString("\nMOST NEGATIVE CONTENT\n")
		text.WriteString("=====================\n")
		for i, record := range report.NegativeRecords {
			score := 0
			if record.Enrichment != nil {
				score = record.Enrichment.SentimentScore
			}
			text.WriteString(fmt.Sprintf("\n%d. %s | %s | Score: %d\n", i+1, record.Origin(), record.PublishedAt.Format("Jan 2, 2006"), score))
			text.WriteString(fmt.Sprintf("   %s\n", truncate(record.Content, 200)))
		}
	}

	text.WriteString("\n---\nThis report was generated automatically by the sentiment analysis system.\n")

	return text.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncate(s string, length int) string {
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	return string(runes[:length]) + "..."
}
