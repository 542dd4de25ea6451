package mail

import (
	"context"
	"fmt"
	"log"
	"net/smtp"

	"github.com/google/uuid"

	"github.com/planetaketo/storefront/internal/pkg/env"
)

// Message is a single transactional email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers transactional email and returns the provider message id
// for audit logging. The fulfillment pipeline treats a send error as a failed
// attempt: the email_sent flag stays false and the operation is retried.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SMTPMailer sends emails via SMTP using environment configuration.
type SMTPMailer struct{}

// NewSMTPMailer creates the default SMTP-backed mailer.
func NewSMTPMailer() *SMTPMailer {
	return &SMTPMailer{}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) (string, error) {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)
	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), host)

	body := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMessage-ID: %s\r\n", sender, msg.To, msg.Subject, messageID) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			msg.HTML,
	)

	if err := smtp.SendMail(addr, auth, sender, []string{msg.To}, body); err != nil {
		log.Printf("SMTP send error: %v", err)
		return "", err
	}
	log.Printf("Email sent to %s via %s (%s)", msg.To, addr, messageID)
	return messageID, nil
}
