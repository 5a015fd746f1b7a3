package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"printdesk/internal/config"
)

type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendVerificationCode(ctx context.Context, to string, code string) error {
	subject := "Your verification code"
	body := fmt.Sprintf("Your verification code is: %s\n\nThe code expires in 24 hours. If you did not request it, ignore this email.", code)
	return m.send(to, subject, body)
}

func (m *SMTPMailer) SendRegistrationReceived(ctx context.Context, to string, firstName string) error {
	subject := "Registration received"
	body := fmt.Sprintf("Hi %s,\n\nYour registration has been received and is awaiting coordinator review. You will be notified once it is resolved.", firstName)
	return m.send(to, subject, body)
}

func (m *SMTPMailer) SendCoordinatorAlert(ctx context.Context, to string, requesterName string, requesterEmail string) error {
	subject := "New requester registration pending review"
	body := fmt.Sprintf("A new requester registration is awaiting your review.\n\nName: %s\nEmail: %s", requesterName, requesterEmail)
	return m.send(to, subject, body)
}

func (m *SMTPMailer) SendApproval(ctx context.Context, to string, firstName string, printerCount int) error {
	subject := "Your registration has been approved"
	unit := "printers"
	if printerCount == 1 {
		unit = "printer"
	}
	body := fmt.Sprintf("Hi %s,\n\nYour registration has been approved. You can now sign in and raise service requests for your %d assigned %s.", firstName, printerCount, unit)
	return m.send(to, subject, body)
}

func (m *SMTPMailer) SendRejection(ctx context.Context, to string, firstName string, reason string) error {
	subject := "Your registration was not approved"
	body := fmt.Sprintf("Hi %s,\n\nYour registration was not approved.", firstName)
	if reason != "" {
		body += fmt.Sprintf("\n\nReason: %s", reason)
	}
	body += "\n\nYou may register again with corrected details."
	return m.send(to, subject, body)
}

func (m *SMTPMailer) send(to string, subject string, body string) error {
	from := m.cfg.From
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.From)
	}
	message := buildMessage(from, to, subject, body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	client, err := m.smtpClient(addr)
	if err != nil {
		return fmt.Errorf("mail: failed to connect to smtp server: %w", err)
	}
	defer client.Close()

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mail: smtp auth failed: %w", err)
		}
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("mail: MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("mail: RCPT TO failed: %w", err)
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA failed: %w", err)
	}
	if _, err := writer.Write([]byte(message)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("mail: failed to write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("mail: failed to finish message: %w", err)
	}
	return nil
}

// smtpClient dials the server, using implicit TLS on port 465 and
// opportunistic STARTTLS otherwise.
func (m *SMTPMailer) smtpClient(addr string) (*smtp.Client, error) {
	if m.cfg.Port == 465 {
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.Host})
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn, m.cfg.Host)
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return nil, err
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}

func buildMessage(from string, to string, subject string, body string) string {
	headers := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}
	return strings.Join(headers, "\r\n")
}
