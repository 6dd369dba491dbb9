// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// telegramMaxDocumentBytes is the Bot API upload limit for sendDocument.
const telegramMaxDocumentBytes = 50 * 1024 * 1024

// Telegram delivers messages through the Telegram Bot API. Requests are
// paced with a shared rate limiter and guarded by a circuit breaker so a
// down or throttling API cannot stall the backup pipeline for long.
type Telegram struct {
	client  *http.Client
	baseURL string
	token   string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*telegramResponse]
}

// NewTelegram creates the Telegram channel for a bot token.
func NewTelegram(token string) *Telegram {
	return &Telegram{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://api.telegram.org",
		token:   token,
		// The Bot API allows bursts but sustained sends are throttled
		// around one message per second per chat.
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
		breaker: gobreaker.NewCircuitBreaker[*telegramResponse](gobreaker.Settings{
			Name:        "telegram",
			MaxRequests: 1,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

type telegramSendMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// SendMessage delivers an HTML-formatted message to one chat.
func (t *Telegram) SendMessage(ctx context.Context, chatID, html string) error {
	payload, err := json.Marshal(telegramSendMessage{
		ChatID:                chatID,
		Text:                  html,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return err
	}
	return t.call(ctx, "sendMessage", "application/json", bytes.NewReader(payload))
}

// SendDocument uploads the backup artifact to one chat with a caption.
// Artifacts over the Bot API limit are refused locally.
func (t *Telegram) SendDocument(ctx context.Context, chatID, path, caption string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("backup artifact unavailable: %w", err)
	}
	if info.Size() > telegramMaxDocumentBytes {
		return fmt.Errorf("backup artifact is %d bytes, over the 50 MB Telegram limit", info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", chatID); err != nil {
		return err
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return t.call(ctx, "sendDocument", w.FormDataContentType(), &body)
}

// call performs one Bot API method invocation through the limiter and the
// circuit breaker.
func (t *Telegram) call(ctx context.Context, method, contentType string, body io.Reader) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := t.breaker.Execute(func() (*telegramResponse, error) {
		url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return nil, err
		}
		var api telegramResponse
		if err := json.Unmarshal(raw, &api); err != nil {
			return nil, fmt.Errorf("telegram returned unparseable response (status %d)", resp.StatusCode)
		}
		if !api.OK {
			if api.Parameters != nil && api.Parameters.RetryAfter > 0 {
				return &api, fmt.Errorf("telegram rate limited, retry after %ds", api.Parameters.RetryAfter)
			}
			return &api, fmt.Errorf("telegram error %d: %s", api.ErrorCode, api.Description)
		}
		return &api, nil
	})
	return err
}

// escapeHTML escapes the characters Telegram's HTML parse mode reserves.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
