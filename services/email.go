package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
)

// EmailSender delivers quota alerts. The SMTP implementation is the only
// production one; tests substitute a recorder.
type EmailSender interface {
	SendQuotaAlert(brand models.Brand, alertLevel string, data QuotaAlertData) error
}

type SMTPEmailSender struct {
	config *config.Config
}

// QuotaAlertData carries everything the alert templates render.
type QuotaAlertData struct {
	BrandName       string
	ContactEmail    string
	AdminEmails     []string
	UsedTokens      int
	TotalTokens     int
	RemainingTokens int
	PercentUsed     float64
}

func NewSMTPEmailSender(cfg *config.Config) *SMTPEmailSender {
	return &SMTPEmailSender{config: cfg}
}

func (s *SMTPEmailSender) SendQuotaAlert(brand models.Brand, alertLevel string, data QuotaAlertData) error {
	recipients := []string{}
	if brand.ContactEmail != "" {
		recipients = append(recipients, brand.ContactEmail)
	}
	for _, adminEmail := range s.config.AdminEmails {
		if strings.TrimSpace(adminEmail) != "" {
			recipients = append(recipients, strings.TrimSpace(adminEmail))
		}
	}

	if len(recipients) == 0 {
		return fmt.Errorf("no recipients configured for brand %s", brand.Name)
	}

	subject, htmlBody, textBody, err := s.generateEmailContent(alertLevel, data)
	if err != nil {
		return fmt.Errorf("failed to generate email content: %w", err)
	}

	return s.sendEmail(recipients, subject, htmlBody, textBody)
}

func (s *SMTPEmailSender) generateEmailContent(alertLevel string, data QuotaAlertData) (subject, htmlBody, textBody string, err error) {
	var subjectTpl, htmlTpl, textTpl string

	switch alertLevel {
	case models.AlertLevelWarn:
		subjectTpl = "Model Quota Warning - {{.BrandName}} ({{printf \"%.0f\" .PercentUsed}}% used)"
		htmlTpl = getWarnHTMLTemplate()
		textTpl = getWarnTextTemplate()
	case models.AlertLevelCritical:
		subjectTpl = "CRITICAL: Model Quota Alert - {{.BrandName}} ({{printf \"%.0f\" .PercentUsed}}% used)"
		htmlTpl = getCriticalHTMLTemplate()
		textTpl = getCriticalTextTemplate()
	case models.AlertLevelExhausted:
		subjectTpl = "URGENT: Model Quota Exhausted - {{.BrandName}}"
		htmlTpl = getExhaustedHTMLTemplate()
		textTpl = getExhaustedTextTemplate()
	default:
		return "", "", "", fmt.Errorf("unknown alert level: %s", alertLevel)
	}

	subjectT, err := template.New("subject").Parse(subjectTpl)
	if err != nil {
		return "", "", "", err
	}
	htmlT, err := template.New("html").Parse(htmlTpl)
	if err != nil {
		return "", "", "", err
	}
	textT, err := template.New("text").Parse(textTpl)
	if err != nil {
		return "", "", "", err
	}

	var subjectBuf, htmlBuf, textBuf bytes.Buffer

	if err := subjectT.Execute(&subjectBuf, data); err != nil {
		return "", "", "", err
	}
	if err := htmlT.Execute(&htmlBuf, data); err != nil {
		return "", "", "", err
	}
	if err := textT.Execute(&textBuf, data); err != nil {
		return "", "", "", err
	}

	return subjectBuf.String(), htmlBuf.String(), textBuf.String(), nil
}

func (s *SMTPEmailSender) sendEmail(recipients []string, subject, htmlBody, textBody string) error {
	auth := smtp.PlainAuth("", s.config.SMTPUser, s.config.SMTPPass, s.config.SMTPHost)

	message := fmt.Sprintf(`From: %s
To: %s
Subject: %s
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="boundary123"

--boundary123
Content-Type: text/plain; charset=UTF-8

%s

--boundary123
Content-Type: text/html; charset=UTF-8

%s

--boundary123--`,
		s.config.SMTPFrom,
		strings.Join(recipients, ", "),
		subject,
		textBody,
		htmlBody)

	addr := fmt.Sprintf("%s:%s", s.config.SMTPHost, s.config.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.SMTPFrom, recipients, []byte(message))
}

// SendEmail sends a generic email with HTML and text bodies.
func (s *SMTPEmailSender) SendEmail(recipients []string, subject, htmlBody, textBody string) error {
	return s.sendEmail(recipients, subject, htmlBody, textBody)
}

// Email templates
func getWarnHTMLTemplate() string {
	return `<html><body>
<h2>Model Quota Warning</h2>
<p>Hello,</p>
<p>The brand workspace <strong>{{.BrandName}}</strong> has used <strong>{{printf "%.0f" .PercentUsed}}%</strong> of its model token budget.</p>
<ul>
<li>Used: {{.UsedTokens}} tokens</li>
<li>Total: {{.TotalTokens}} tokens</li>
<li>Remaining: {{.RemainingTokens}} tokens</li>
</ul>
<p>Deck builds keep running for now. Consider raising the budget or spacing out rebuilds.</p>
</body></html>`
}

func getWarnTextTemplate() string {
	return `Model Quota Warning

Hello,

The brand workspace {{.BrandName}} has used {{printf "%.0f" .PercentUsed}}% of its model token budget.

Used: {{.UsedTokens}} tokens
Total: {{.TotalTokens}} tokens
Remaining: {{.RemainingTokens}} tokens

Deck builds keep running for now. Consider raising the budget or spacing out rebuilds.`
}

func getCriticalHTMLTemplate() string {
	return `<html><body>
<h2 style="color: red;">CRITICAL: Model Quota Alert</h2>
<p>Hello,</p>
<p><strong style="color: red;">URGENT:</strong> The brand workspace <strong>{{.BrandName}}</strong> has used <strong>{{printf "%.0f" .PercentUsed}}%</strong> of its model token budget.</p>
<ul>
<li>Used: {{.UsedTokens}} tokens</li>
<li>Total: {{.TotalTokens}} tokens</li>
<li>Remaining: {{.RemainingTokens}} tokens</li>
</ul>
<p><strong>Action required soon</strong> or deck builds will fall back to heuristic output.</p>
</body></html>`
}

func getCriticalTextTemplate() string {
	return `CRITICAL: Model Quota Alert

Hello,

URGENT: The brand workspace {{.BrandName}} has used {{printf "%.0f" .PercentUsed}}% of its model token budget.

Used: {{.UsedTokens}} tokens
Total: {{.TotalTokens}} tokens
Remaining: {{.RemainingTokens}} tokens

Action required soon or deck builds will fall back to heuristic output.`
}

func getExhaustedHTMLTemplate() string {
	return `<html><body>
<h2 style="color: red;">URGENT: Model Quota Exhausted</h2>
<p>Hello,</p>
<p><strong style="color: red;">SERVICE IMPACT:</strong> The brand workspace <strong>{{.BrandName}}</strong> has exhausted its model token budget.</p>
<ul>
<li>Used: {{.UsedTokens}} tokens</li>
<li>Total: {{.TotalTokens}} tokens</li>
<li>Remaining: 0 tokens</li>
</ul>
<p><strong>Immediate action required</strong> - new deck builds and corpus questions will degrade to fallback content until the budget is replenished.</p>
</body></html>`
}

func getExhaustedTextTemplate() string {
	return `URGENT: Model Quota Exhausted

Hello,

SERVICE IMPACT: The brand workspace {{.BrandName}} has exhausted its model token budget.

Used: {{.UsedTokens}} tokens
Total: {{.TotalTokens}} tokens
Remaining: 0 tokens

Immediate action required - new deck builds and corpus questions will degrade to fallback content until the budget is replenished.`
}
