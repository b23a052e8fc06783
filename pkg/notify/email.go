package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"regwatch/pkg/domain"
)

// Email sends discovery notifications over SMTP with STARTTLS. Messages are
// multipart/alternative with plain-text and HTML bodies; event fields are
// HTML-escaped in the HTML part.
type Email struct {
	params EmailParams
}

// EmailParams defines email notifier configuration
type EmailParams struct {
	Host     string
	Port     int
	From     string
	To       string
	User     string
	Password string
	Timeout  time.Duration
}

// NewEmail creates an email notifier
func NewEmail(params EmailParams) *Email {
	if params.Port == 0 {
		params.Port = 587
	}
	if params.Timeout == 0 {
		params.Timeout = 30 * time.Second
	}
	return &Email{params: params}
}

// Name implements Notifier
func (e *Email) Name() string { return "email" }

// Send delivers the notification message for one event
func (e *Email) Send(ctx context.Context, ev domain.Event) error {
	msg, err := e.buildMessage(ev)
	if err != nil {
		return fmt.Errorf("build email message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", e.params.Host, e.params.Port)
	dialer := net.Dialer{Timeout: e.params.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, e.params.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err = client.StartTLS(&tls.Config{ServerName: e.params.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if e.params.User != "" {
		auth := smtp.PlainAuth("", e.params.User, e.params.Password, e.params.Host)
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err = client.Mail(e.params.From); err != nil {
		return fmt.Errorf("smtp mail from %s: %w", e.params.From, err)
	}
	for _, rcpt := range strings.Split(e.params.To, ",") {
		if err = client.Rcpt(strings.TrimSpace(rcpt)); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("write email body: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("finish email body: %w", err)
	}
	return client.Quit()
}

// buildMessage assembles the multipart/alternative MIME message
func (e *Email) buildMessage(ev domain.Event) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	plain := fmt.Sprintf("New Event Detected!\n\n"+
		"Title: %s\nDate: %s\nLink: %s\n\nDescription: %s\n\n---\n"+
		"This is an automated notification from the registration watcher.\n",
		ev.Title, ev.DeadlineText, ev.Link, ev.Description)

	pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {`text/plain; charset="utf-8"`}})
	if err != nil {
		return nil, err
	}
	if _, err = pw.Write([]byte(plain)); err != nil {
		return nil, err
	}

	htmlBody := fmt.Sprintf("<html><body>\n<h2>New Event Detected!</h2>\n"+
		"<p><strong>Title:</strong> %s</p>\n<p><strong>Date:</strong> %s</p>\n"+
		"<p><strong>Link:</strong> <a href=%q>%s</a></p>\n"+
		"<p><strong>Description:</strong> %s</p>\n<hr>\n"+
		"<p><em>This is an automated notification from the registration watcher.</em></p>\n"+
		"</body></html>\n",
		html.EscapeString(ev.Title), html.EscapeString(ev.DeadlineText),
		html.EscapeString(ev.Link), html.EscapeString(ev.Link), html.EscapeString(ev.Description))

	hw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {`text/html; charset="utf-8"`}})
	if err != nil {
		return nil, err
	}
	if _, err = hw.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}
	if err = mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", e.params.From)
	fmt.Fprintf(&msg, "To: %s\r\n", e.params.To)
	fmt.Fprintf(&msg, "Subject: New Event: %s\r\n", ev.Title)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}
