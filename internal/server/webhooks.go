package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"schemaline/internal/config"
	"schemaline/internal/domain"
	"schemaline/internal/engine"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookBatch    = 100
	webhookRetryDelay      = 200 * time.Millisecond
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Schemaline-Signature"

type webhookDispatcher struct {
	engine   engine.Engine
	webhooks []config.Webhook
	logger   *slog.Logger
	client   *http.Client
	interval time.Duration
	cursors  map[string]string
}

// StartWebhookDispatcher delivers changelog entries to the configured
// webhooks until ctx is cancelled. Each webhook starts at the latest entry
// present when the dispatcher starts.
func StartWebhookDispatcher(ctx context.Context, e engine.Engine, logger *slog.Logger) {
	d := newWebhookDispatcher(e, logger)
	if d == nil {
		return
	}
	go d.run(ctx)
}

func newWebhookDispatcher(e engine.Engine, logger *slog.Logger) *webhookDispatcher {
	if e.Config == nil {
		return nil
	}
	var hooks []config.Webhook
	for _, hook := range e.Config.Webhooks {
		if hook.IsEnabled() && strings.TrimSpace(hook.URL) != "" {
			hooks = append(hooks, hook)
		}
	}
	if len(hooks) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &webhookDispatcher{
		engine:   e,
		webhooks: hooks,
		logger:   logger.With("component", "webhooks"),
		client:   &http.Client{},
		interval: defaultWebhookInterval,
		cursors:  make(map[string]string),
	}
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for _, hook := range d.webhooks {
		if ctx.Err() != nil {
			return
		}
		d.dispatchWebhook(ctx, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, hook config.Webhook) {
	cursor, ok := d.cursors[hook.ID]
	if !ok {
		latest, err := d.engine.Repo.LatestChangelogID(ctx, nil)
		if err != nil {
			d.logger.Error("init cursor failed", "webhook", hook.ID, "error", err)
			return
		}
		d.cursors[hook.ID] = latest
		cursor = latest
	}
	entries, err := d.engine.ChangelogAfter(ctx, cursor, defaultWebhookBatch)
	if err != nil {
		d.logger.Error("fetch changelog failed", "webhook", hook.ID, "error", err)
		return
	}
	filter := newEntryFilter(hook)
	for _, entry := range entries {
		if filter.match(entry) {
			if err := d.deliver(ctx, hook, entry); err != nil {
				d.logger.Warn("delivery failed", "webhook", hook.ID, "entry", entry.ID, "error", err)
				return
			}
			d.logger.Debug("delivered", "webhook", hook.ID, "entry", entry.ID)
		}
		d.cursors[hook.ID] = entry.ID
	}
}

// deliver posts entry, retrying up to MaxAttempts times.
func (d *webhookDispatcher) deliver(ctx context.Context, hook config.Webhook, entry domain.ChangelogEntry) error {
	attempts := hook.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(webhookRetryDelay * time.Duration(i)):
			}
		}
		if err = d.postEntry(ctx, hook, entry); err == nil {
			return nil
		}
	}
	return err
}

func (d *webhookDispatcher) postEntry(ctx context.Context, hook config.Webhook, entry domain.ChangelogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if hook.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(hook.TimeoutMS)*time.Millisecond)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Schemaline-Event", string(entry.ChangeType))
	req.Header.Set("X-Schemaline-Delivery", entry.ID)
	req.Header.Set("X-Schemaline-Webhook", hook.ID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set(SignatureHeader, Sign(hook.Secret, data))
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type entryFilter struct {
	events map[string]struct{}
	models map[string]struct{}
}

func newEntryFilter(hook config.Webhook) entryFilter {
	return entryFilter{events: toSet(hook.Events, strings.ToUpper), models: toSet(hook.Models, nil)}
}

func toSet(values []string, norm func(string) string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := strings.TrimSpace(v)
		if norm != nil {
			key = norm(key)
		}
		if key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func (f entryFilter) match(entry domain.ChangelogEntry) bool {
	if f.events != nil {
		if _, ok := f.events[string(entry.ChangeType)]; !ok {
			return false
		}
	}
	if f.models != nil {
		if _, ok := f.models[entry.ModelID]; !ok {
			return false
		}
	}
	return true
}
