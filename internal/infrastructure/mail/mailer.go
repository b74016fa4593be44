// Package mail delivers the final digest over SMTP with STARTTLS.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"TweetDigest/internal/ports"
)

// Mailer implements ports.Deliverer over plain SMTP.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
	now      func() time.Time
}

var _ ports.Deliverer = (*Mailer)(nil)

// NewMailer wires SMTP endpoint and addressing. From defaults to the
// username when omitted.
func NewMailer(host string, port int, username, password, from, to string) *Mailer {
	if from == "" {
		from = username
	}
	return &Mailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		now:      time.Now,
	}
}

// Deliver sends the digest. Delivery failure is surfaced to the caller but
// never rolls back already-persisted cursor state.
func (m *Mailer) Deliver(ctx context.Context, summary string, files []string) error {
	if m.to == "" {
		return fmt.Errorf("mailer misconfigured: recipient address is empty")
	}
	if m.username == "" || m.password == "" {
		return fmt.Errorf("mailer misconfigured: SMTP credentials are empty")
	}

	subject := fmt.Sprintf("TweetDeck trend digest - %s", m.now().Format("2006-01-02 15:04 MST"))
	msg := formatMessage(m.from, m.to, subject, buildBody(summary, files))

	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	dialer := net.Dialer{Timeout: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	if err := client.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(m.to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}

	return client.Quit()
}

func buildBody(summary string, files []string) string {
	var b strings.Builder
	b.WriteString("Tweet trend digest for the most recent window:\n\n")
	b.WriteString(summary)
	b.WriteString("\n\nProcessed files:\n")
	if len(files) == 0 {
		b.WriteString("  (no new files this run)\n")
	}
	for _, name := range files {
		b.WriteString("  - ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	return b.String()
}

func formatMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
