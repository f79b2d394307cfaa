package hooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

const (
	webhookUserAgent = "tess-hooks/1.0"
	// webhookRateLimit is the number of deliveries allowed per URL per minute.
	webhookRateLimit = 10
	commandTimeout   = 10 * time.Second
)

// allowedCommands are the only executables run_command may start.
var allowedCommands = []string{"echo", "logger", "notify-send"}

// RegisterBuiltInActions registers the default action handlers.
func RegisterBuiltInActions(m *HookManager) {
	m.RegisterAction(ActionLogWarning, handleLogWarning)
	wh := NewWebhookHandler()
	m.RegisterAction(ActionNotifyWebhook, wh.Handle)
	m.RegisterAction(ActionRunCommand, handleRunCommand)
}

func handleLogWarning(hook *Hook, ctx *EventContext) error {
	msg, _ := hook.Params["message"].(string)
	if msg == "" {
		msg = "Hook triggered"
	}
	entry := log.WithField("event", string(ctx.Event))
	if ctx.Provider != "" {
		entry = entry.WithField("provider", ctx.Provider)
	}
	if ctx.Action != "" {
		entry = entry.WithField("action", ctx.Action)
	}
	if ctx.RequestID != "" {
		entry = entry.WithField("request_id", ctx.RequestID)
	}
	entry.Warnf("[Hook: %s] %s", hook.Name, msg)
	return nil
}

// WebhookHandler manages webhook execution with rate limiting.
type WebhookHandler struct {
	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
	client       *http.Client
	backoff      []time.Duration
	now          func() time.Time
}

type rateLimiter struct {
	count    int
	lastTime time.Time
}

// NewWebhookHandler returns a handler that retries after 1s, 2s and 4s.
func NewWebhookHandler() *WebhookHandler {
	return &WebhookHandler{
		rateLimiters: make(map[string]*rateLimiter),
		client:       &http.Client{Timeout: 5 * time.Second},
		backoff:      []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		now:          time.Now,
	}
}

// Handle delivers ctx to the hook's url as a JSON POST, signed with the hook's secret
// when one is set.
func (h *WebhookHandler) Handle(hook *Hook, ctx *EventContext) error {
	url, _ := hook.Params["url"].(string)
	if url == "" {
		return fmt.Errorf("missing webhook url")
	}
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://localhost") {
		return fmt.Errorf("insecure webhook url (must be https or localhost): %s", url)
	}
	if !h.checkRateLimit(url) {
		return fmt.Errorf("rate limit exceeded for webhook: %s", url)
	}

	body, err := json.Marshal(webhookPayload(hook, ctx))
	if err != nil {
		return err
	}
	secret, _ := hook.Params["secret"].(string)

	var lastErr error
	for i := 0; i <= len(h.backoff); i++ {
		if i > 0 {
			time.Sleep(h.backoff[i-1])
		}
		if lastErr = h.deliver(url, secret, body); lastErr == nil {
			return nil
		}
		log.Warnf("Webhook attempt %d failed: %v", i+1, lastErr)
	}
	return fmt.Errorf("webhook failed after retries: %w", lastErr)
}

func webhookPayload(hook *Hook, ctx *EventContext) map[string]any {
	payload := map[string]any{
		"event":     ctx.Event,
		"timestamp": ctx.Timestamp,
		"hook_id":   hook.ID,
		"data":      ctx.Data,
	}
	if ctx.Provider != "" {
		payload["provider"] = ctx.Provider
	}
	if ctx.Action != "" {
		payload["action"] = ctx.Action
	}
	if ctx.RequestID != "" {
		payload["request_id"] = ctx.RequestID
	}
	if ctx.ErrorMessage != "" {
		payload["error"] = ctx.ErrorMessage
	}
	return payload
}

func (h *WebhookHandler) deliver(url, secret string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	if secret != "" {
		req.Header.Set("X-Hook-Signature", "sha256="+Sign(secret, body))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret, as sent in X-Hook-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *WebhookHandler) checkRateLimit(url string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	limiter, exists := h.rateLimiters[url]
	if !exists {
		limiter = &rateLimiter{lastTime: now}
		h.rateLimiters[url] = limiter
	}
	if now.Sub(limiter.lastTime) > time.Minute {
		limiter.count = 0
		limiter.lastTime = now
	}
	if limiter.count >= webhookRateLimit {
		return false
	}
	limiter.count++
	return true
}

func handleRunCommand(hook *Hook, ctx *EventContext) error {
	cmdStr, _ := hook.Params["command"].(string)
	if cmdStr == "" {
		return fmt.Errorf("missing command")
	}
	cmdParts := strings.Fields(cmdStr)
	if len(cmdParts) == 0 {
		return fmt.Errorf("empty command")
	}
	if !slices.Contains(allowedCommands, cmdParts[0]) {
		return fmt.Errorf("command '%s' is not in the whitelist", cmdParts[0])
	}

	runCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, cmdParts[0], cmdParts[1:]...)
	cmd.Env = append(cmd.Environ(), "TESS_EVENT="+string(ctx.Event), "TESS_PROVIDER="+ctx.Provider, "TESS_ACTION="+ctx.Action)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("command failed: %v, output: %s", err, string(out))
	}
	return nil
}
