// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

// Package notify delivers terminal-run notifications over Telegram and
// email. The dispatcher fans one run out to every configured recipient,
// applying each recipient's severity floor, and reports one result per
// recipient so the engine can store delivery outcomes with the run.
package notify

import (
	"context"

	"github.com/tomtom215/custodia/internal/backup"
	"github.com/tomtom215/custodia/internal/config"
	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/metrics"
	"github.com/tomtom215/custodia/internal/models"
)

// telegramSender is the surface of the Telegram channel the dispatcher
// uses, split out so tests can substitute a fake.
type telegramSender interface {
	SendMessage(ctx context.Context, chatID, html string) error
	SendDocument(ctx context.Context, chatID, path, caption string) error
}

// emailSender is the surface of the email channel the dispatcher uses.
type emailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Dispatcher implements the engine's Notifier. Channels are nil when their
// transport is not configured; recipients addressed at an unconfigured
// channel get a failed result rather than a silent drop.
type Dispatcher struct {
	telegram telegramSender
	email    emailSender
}

// NewDispatcher builds the dispatcher from configuration. Either or both
// channels may be absent.
func NewDispatcher(cfg *config.Config) *Dispatcher {
	d := &Dispatcher{}
	if cfg.Telegram.Enabled() {
		d.telegram = NewTelegram(cfg.Telegram.BotToken)
		logging.Info().Msg("Telegram notifications enabled")
	}
	if cfg.SMTP.Enabled() {
		d.email = NewEmail(EmailOptions{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			From:               cfg.SMTP.FromAddress(),
			UseTLS:             cfg.SMTP.UseTLS,
			UseSSL:             cfg.SMTP.UseSSL,
			AllowInsecureCerts: cfg.SMTP.AllowInsecureCerts,
			CACertFile:         cfg.SMTP.CACertFile,
		})
		logging.Info().Str("host", cfg.SMTP.Host).Msg("Email notifications enabled")
	}
	return d
}

// Notify delivers one terminal run to every matching recipient and returns
// a per-recipient result slice. Delivery failures never propagate; they are
// recorded in the results and logged.
func (d *Dispatcher) Notify(ctx context.Context, n backup.RunNotification) []models.NotificationResult {
	if n.Settings == nil {
		return nil
	}

	var results []models.NotificationResult
	status := string(n.Status)

	if tg := n.Settings.Telegram; tg != nil {
		html := renderHTML(n)
		for _, r := range tg.ExtractRecipients(true) {
			if !models.ShouldNotify(status, r.MinSeverity) {
				continue
			}
			results = append(results, d.sendTelegram(ctx, n, tg, r.ChatID, html))
		}
	}

	if em := n.Settings.Email; em != nil {
		subject := subjectLine(n)
		body := renderText(n)
		for _, r := range em.ExtractRecipients(false) {
			if !models.ShouldNotify(status, r.MinSeverity) {
				continue
			}
			results = append(results, d.sendEmail(ctx, r.To, subject, body))
		}
	}

	for _, res := range results {
		metrics.RecordNotification(res.Channel, res.Success)
		if !res.Success {
			logging.Warn().
				Str("channel", res.Channel).
				Str("recipient", res.Recipient).
				Str("error", res.Error).
				Msg("Notification delivery failed")
		}
	}
	return results
}

func (d *Dispatcher) sendTelegram(ctx context.Context, n backup.RunNotification, cfg *models.ChannelConfig, chatID, html string) models.NotificationResult {
	res := models.NotificationResult{Channel: "telegram", Recipient: chatID}
	if d.telegram == nil {
		res.Error = "telegram is not configured (TELEGRAM_BOT_TOKEN unset)"
		return res
	}
	if err := d.telegram.SendMessage(ctx, chatID, html); err != nil {
		res.Error = err.Error()
		return res
	}
	// The artifact is only attached for runs that produced one and only
	// when the schedule asks for it.
	if cfg.AttachBackup && n.ArtifactPath != "" && n.Status != models.StatusFailed {
		if err := d.telegram.SendDocument(ctx, chatID, n.ArtifactPath, n.BackupFilename); err != nil {
			res.Error = "message sent, attachment failed: " + err.Error()
			return res
		}
	}
	res.Success = true
	return res
}

func (d *Dispatcher) sendEmail(ctx context.Context, to, subject, body string) models.NotificationResult {
	res := models.NotificationResult{Channel: "email", Recipient: to}
	if d.email == nil {
		res.Error = "email is not configured (SMTP_HOST unset)"
		return res
	}
	if err := d.email.Send(ctx, to, subject, body); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}
