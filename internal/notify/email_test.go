// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package notify

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	e := NewEmail(EmailOptions{
		Host: "smtp.example.com",
		Port: 587,
		From: "custodia@example.com",
	})

	msg := e.buildMessage("ops@example.com", "[Custodia] Backup completed: Nightly", "Backup completed\n")
	header, _, found := strings.Cut(msg, "\r\n\r\n")
	if !found {
		t.Fatal("message has no header/body separator")
	}
	for _, want := range []string{
		"From: custodia@example.com\r\n",
		"To: ops@example.com\r\n",
		"Subject: [Custodia] Backup completed: Nightly\r\n",
		"MIME-Version: 1.0\r\n",
		"Content-Type: text/plain; charset=UTF-8",
	} {
		if !strings.Contains(header+"\r\n", want) {
			t.Errorf("header missing %q in %q", want, header)
		}
	}
	if !strings.Contains(msg, "\r\nDate: ") {
		t.Errorf("header missing Date: %q", header)
	}
}

func TestTLSConfigCABundle(t *testing.T) {
	t.Parallel()

	bad := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(bad, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}

	e := NewEmail(EmailOptions{Host: "smtp.example.com", CACertFile: bad})
	if _, err := e.tlsConfig(); err == nil {
		t.Fatal("expected error for a bundle with no certificates")
	}

	e = NewEmail(EmailOptions{Host: "smtp.example.com", CACertFile: filepath.Join(t.TempDir(), "missing.pem")})
	if _, err := e.tlsConfig(); err == nil {
		t.Fatal("expected error for a missing bundle")
	}

	e = NewEmail(EmailOptions{Host: "smtp.example.com", AllowInsecureCerts: true})
	cfg, err := e.tlsConfig()
	if err != nil {
		t.Fatalf("tlsConfig: %v", err)
	}
	if !cfg.InsecureSkipVerify || cfg.ServerName != "smtp.example.com" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestSendConnectionRefused(t *testing.T) {
	t.Parallel()

	e := NewEmail(EmailOptions{
		Host: "127.0.0.1",
		Port: 1, // nothing listens here
		From: "custodia@example.com",
	})
	e.timeout = 500 * time.Millisecond

	err := e.Send(context.Background(), "ops@example.com", "subject", "body")
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !strings.Contains(err.Error(), "failed to connect") {
		t.Errorf("err = %v", err)
	}
}
