// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart HTML email
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-blupi"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// VerificationData holds data for the account verification template
type VerificationData struct {
	UserName        string
	VerificationURL string
}

// PasswordResetData holds data for the password reset template
type PasswordResetData struct {
	UserName string
	ResetURL string
}

// ProjectInviteData holds data for the project invite template
type ProjectInviteData struct {
	InviteeName string
	InviterName string
	ProjectName string
	Role        string
	ProjectURL  string
}

// CommentData holds data for the new-comment template
type CommentData struct {
	RecipientName string
	AuthorName    string
	BoardName     string
	Excerpt       string
	BoardURL      string
}

var (
	verificationTmpl = template.Must(template.New("verification").Parse(`
<p>Hi {{.UserName}},</p>
<p>Welcome to Blupi. Confirm your email address to finish creating your account:</p>
<p><a href="{{.VerificationURL}}">Verify my email</a></p>
<p>If you did not sign up, you can ignore this message.</p>`))

	passwordResetTmpl = template.Must(template.New("reset").Parse(`
<p>Hi {{.UserName}},</p>
<p>We received a request to reset your Blupi password. The link below is valid for one hour:</p>
<p><a href="{{.ResetURL}}">Reset my password</a></p>
<p>If you did not request a reset, you can ignore this message.</p>`))

	projectInviteTmpl = template.Must(template.New("invite").Parse(`
<p>Hi {{.InviteeName}},</p>
<p>{{.InviterName}} invited you to the project <strong>{{.ProjectName}}</strong> as {{.Role}}.</p>
<p><a href="{{.ProjectURL}}">Open the project</a></p>`))

	commentTmpl = template.Must(template.New("comment").Parse(`
<p>Hi {{.RecipientName}},</p>
<p>{{.AuthorName}} commented on <strong>{{.BoardName}}</strong>:</p>
<blockquote>{{.Excerpt}}</blockquote>
<p><a href="{{.BoardURL}}">View the board</a></p>`))
)

// SendVerificationEmail sends the account verification email
func (s *Service) SendVerificationEmail(to string, data VerificationData) error {
	body, err := render(verificationTmpl, data)
	if err != nil {
		return err
	}
	return s.SendHTMLEmail([]string{to}, "Verify your Blupi account", body)
}

// SendPasswordResetEmail sends the password reset email
func (s *Service) SendPasswordResetEmail(to string, data PasswordResetData) error {
	body, err := render(passwordResetTmpl, data)
	if err != nil {
		return err
	}
	return s.SendHTMLEmail([]string{to}, "Reset your Blupi password", body)
}

// SendProjectInviteEmail sends the project invitation email
func (s *Service) SendProjectInviteEmail(to string, data ProjectInviteData) error {
	body, err := render(projectInviteTmpl, data)
	if err != nil {
		return err
	}
	return s.SendHTMLEmail([]string{to}, fmt.Sprintf("You were invited to %s", data.ProjectName), body)
}

// SendCommentNotificationEmail sends the new-comment email
func (s *Service) SendCommentNotificationEmail(to string, data CommentData) error {
	body, err := render(commentTmpl, data)
	if err != nil {
		return err
	}
	return s.SendHTMLEmail([]string{to}, fmt.Sprintf("New comment on %s", data.BoardName), body)
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email template: %w", err)
	}
	return buf.String(), nil
}
