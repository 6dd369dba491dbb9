// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package notify

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"strings"
	"time"
)

// Email delivers plain-text run notifications over SMTP. It supports
// implicit TLS (SMTP_USE_SSL, typically port 465) and STARTTLS
// (SMTP_USE_TLS, typically port 587), with an optional private CA bundle.
type Email struct {
	host     string
	port     int
	username string
	password string
	from     string

	useTLS        bool
	useSSL        bool
	insecureCerts bool
	caCertFile    string

	timeout time.Duration
}

// EmailOptions carries the SMTP settings the dispatcher resolves from
// configuration.
type EmailOptions struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	UseTLS             bool
	UseSSL             bool
	AllowInsecureCerts bool
	CACertFile         string
}

// NewEmail creates the email channel.
func NewEmail(opts EmailOptions) *Email {
	return &Email{
		host:          opts.Host,
		port:          opts.Port,
		username:      opts.Username,
		password:      opts.Password,
		from:          opts.From,
		useTLS:        opts.UseTLS,
		useSSL:        opts.UseSSL,
		insecureCerts: opts.AllowInsecureCerts,
		caCertFile:    opts.CACertFile,
		timeout:       30 * time.Second,
	}
}

// Send delivers one message to one recipient.
func (e *Email) Send(ctx context.Context, to, subject, body string) error {
	msg := e.buildMessage(to, subject, body)
	return e.sendSMTP(ctx, to, msg)
}

// buildMessage assembles the RFC 5322 message with CRLF line endings.
func (e *Email) buildMessage(to, subject, body string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", e.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}

// tlsConfig builds the TLS settings shared by both the implicit-TLS and
// STARTTLS paths.
func (e *Email) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: e.host,
		MinVersion: tls.VersionTLS12,
	}
	if e.insecureCerts {
		cfg.InsecureSkipVerify = true //nolint:gosec // Explicit operator opt-in
	}
	if e.caCertFile != "" {
		pem, err := os.ReadFile(e.caCertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %s contains no certificates", e.caCertFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func (e *Email) sendSMTP(ctx context.Context, to, msg string) error {
	addr := fmt.Sprintf("%s:%d", e.host, e.port)

	dialer := &net.Dialer{Timeout: e.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }() //nolint:errcheck // Best effort cleanup

	if e.useSSL {
		tlsCfg, err := e.tlsConfig()
		if err != nil {
			return err
		}
		conn = tls.Client(conn, tlsCfg)
	}

	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }() //nolint:errcheck // Best effort cleanup

	if e.useTLS && !e.useSSL {
		tlsCfg, err := e.tlsConfig()
		if err != nil {
			return err
		}
		if err := client.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if e.username != "" && e.password != "" {
		auth := smtp.PlainAuth("", e.username, e.password, e.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message: %w", err)
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	// QUIT failures after a completed DATA are not delivery failures.
	_ = client.Quit() //nolint:errcheck // Message already accepted

	return nil
}
