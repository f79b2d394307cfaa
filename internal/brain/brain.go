// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package brain turns a user request into a completion by walking the configured
// providers in priority order and failing over between credentials and providers.
//
// Per provider the loop is: acquire a credential, call the adapter, then evaluate the
// outcome. Rate limits, transient failures and malformed responses consume one of the
// provider's attempts and retry with the next credential; an authentication failure
// retires the key and retries immediately without consuming an attempt. When the pool
// has no usable credential, or the attempts are spent, the next provider is tried.
// Only total exhaustion reaches the caller, as a single redacted *Error.
package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/tess/internal/action"
	"github.com/traylinx/tess/internal/config"
	"github.com/traylinx/tess/internal/hooks"
	"github.com/traylinx/tess/internal/keypool"
	"github.com/traylinx/tess/internal/logging"
	"github.com/traylinx/tess/internal/provider"
	"github.com/traylinx/tess/internal/util"
)

// Brain owns the failover loop. It is safe for concurrent use; all shared state lives
// in the key pool.
type Brain struct {
	pool      *keypool.Pool
	adapter   provider.Adapter
	providers []config.ProviderConfig
	redactor  *util.Redactor
	bus       *hooks.EventBus
	attempts  int
	reprompts int
}

// Option configures a Brain.
type Option func(*Brain)

// WithEventBus publishes failover events to bus.
func WithEventBus(bus *hooks.EventBus) Option {
	return func(b *Brain) { b.bus = bus }
}

// WithRedactor replaces the redactor built from the configured keys.
func WithRedactor(r *util.Redactor) Option {
	return func(b *Brain) { b.redactor = r }
}

// New builds a Brain over cfg.Providers, which must already be sanitized (priority sorted).
func New(cfg *config.Config, pool *keypool.Pool, adapter provider.Adapter, opts ...Option) *Brain {
	b := &Brain{
		pool:      pool,
		adapter:   adapter,
		providers: append([]config.ProviderConfig(nil), cfg.Providers...),
		attempts:  cfg.Brain.AttemptsPerProvider,
		reprompts: cfg.Brain.RepromptAttempts,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.redactor == nil {
		b.redactor = util.NewRedactor(cfg.AllAPIKeys()...)
	}
	if b.attempts <= 0 {
		b.attempts = 1
	}
	if b.reprompts < 0 {
		b.reprompts = 0
	}
	return b
}

// NewPool loads every configured credential into a fresh pool. Providers that need no
// key get a single keyless credential so they take part in selection.
func NewPool(cfg *config.Config, opts ...keypool.Option) (*keypool.Pool, error) {
	base := []keypool.Option{keypool.WithBackoff(keypool.Backoff{
		Base: cfg.KeyPool.CooldownBase(),
		Max:  cfg.KeyPool.CooldownMax(),
	})}
	if cfg.KeyPool.DisableCooling {
		base = append(base, keypool.WithoutCooling())
	}
	pool := keypool.New(append(base, opts...)...)

	for _, p := range cfg.Providers {
		keys := p.APIKeys
		if len(keys) == 0 {
			if p.RequiresKey() {
				log.Warnf("provider %s has no api keys and will be skipped", p.ID)
				continue
			}
			keys = []string{""}
		}
		for _, k := range keys {
			if err := pool.Add(p.ID, k); err != nil && !errors.Is(err, keypool.ErrDuplicateCredential) {
				return nil, fmt.Errorf("load credentials for %s: %w", p.ID, err)
			}
		}
	}
	return pool, nil
}

// Redactor returns the redactor used for every user-visible string.
func (b *Brain) Redactor() *util.Redactor { return b.redactor }

// Pool returns the shared key pool.
func (b *Brain) Pool() *keypool.Pool { return b.pool }

// Complete runs the failover loop for req and returns the first successful completion.
func (b *Brain) Complete(ctx context.Context, req provider.Request) (provider.RawResponse, error) {
	entry := logging.Entry(ctx)
	if len(b.providers) == 0 {
		return provider.RawResponse{}, NewError(StageBrain, "No providers configured", ErrNoProviders)
	}

	var attempts []Attempt
	for _, p := range b.providers {
		used := 0
		for used < b.attempts {
			if err := ctx.Err(); err != nil {
				return provider.RawResponse{}, b.cancelled(err, attempts)
			}

			lease, err := b.pool.Acquire(p.ID)
			if err != nil {
				entry.Debugf("provider %s: %v", p.ID, err)
				break
			}

			resp, err := b.adapter.Complete(ctx, p, lease.Key(), req)
			if err == nil {
				b.pool.Report(lease, keypool.OutcomeSuccess)
				entry.WithField("provider", p.ID).Debugf("completion from %s (%s)", p.ID, resp.Model)
				return resp, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				// The call was abandoned by the caller; its failure says nothing about the key.
				return provider.RawResponse{}, b.cancelled(ctxErr, attempts)
			}

			pe, ok := provider.AsError(err)
			if !ok {
				pe = &provider.Error{Kind: provider.KindTransient, Provider: p.ID, Err: err}
			}
			msg := b.redactor.Redact(pe.Error())
			attempts = append(attempts, Attempt{Provider: p.ID, Kind: pe.Kind, Message: msg})
			entry.WithField("provider", p.ID).Warnf("provider call failed: %s", msg)
			b.publish(ctx, hooks.EventProviderFailed, p.ID, msg, map[string]any{"kind": string(pe.Kind), "status": pe.StatusCode})

			switch pe.Kind {
			case provider.KindAuth:
				cred := b.pool.Report(lease, keypool.OutcomeAuthError)
				b.publish(ctx, hooks.EventCredentialExhausted, p.ID, msg, map[string]any{"key": util.HideAPIKey(cred.Key)})
			case provider.KindRateLimited:
				cred := b.pool.Report(lease, keypool.OutcomeRateLimited, keypool.RetryAfter(pe.RetryAfter))
				used++
				if cred.Status == keypool.StatusCoolingDown {
					b.publish(ctx, hooks.EventCredentialCooling, p.ID, msg, map[string]any{
						"key":            util.HideAPIKey(cred.Key),
						"failures":       cred.ConsecutiveFailures,
						"cooldown_until": cred.CooldownUntil,
					})
				}
			default:
				// Transient and malformed responses share retry handling.
				b.pool.Report(lease, keypool.OutcomeTransientError)
				used++
			}
		}
	}

	return provider.RawResponse{}, b.exhausted(ctx, attempts)
}

func (b *Brain) cancelled(err error, attempts []Attempt) *Error {
	e := NewError(StageBrain, "Request cancelled", err)
	e.Attempts = attempts
	return e
}

func (b *Brain) exhausted(ctx context.Context, attempts []Attempt) *Error {
	ids := make([]string, 0, len(b.providers))
	for _, p := range b.providers {
		ids = append(ids, p.ID)
	}
	msg := "All providers are unavailable (tried " + strings.Join(ids, ", ") + ")"
	if n := len(attempts); n > 0 {
		last := attempts[n-1]
		msg += fmt.Sprintf("; last error from %s: %s", last.Provider, last.Kind)
	} else {
		msg += "; no usable credentials"
	}
	e := NewError(StageBrain, b.redactor.Redact(msg), ErrProvidersExhausted)
	e.Attempts = attempts

	logging.Entry(ctx).WithField("attempts", len(attempts)).Error(e.Message)
	b.publish(ctx, hooks.EventProvidersExhausted, "", e.Message, map[string]any{"attempts": len(attempts)})
	return e
}

// Decision is a validated action and the completion it came from.
type Decision struct {
	Action   action.Action
	Response provider.RawResponse
}

// Decide asks the providers for an action answering text and validates it. An invalid
// payload is sent back for correction up to the configured number of re-prompts before
// the validation error is surfaced.
func (b *Brain) Decide(ctx context.Context, text string, history []provider.Message) (Decision, error) {
	req := provider.Request{System: SystemPrompt(), Prompt: text, History: history, JSONMode: true}
	resp, err := b.Complete(ctx, req)
	if err != nil {
		return Decision{}, err
	}

	a, verr := action.Parse(resp.Text)
	for i := 0; verr != nil && i < b.reprompts; i++ {
		b.validationFailed(ctx, resp, verr)
		correction := provider.Request{
			System: correctionSystemPrompt,
			History: []provider.Message{
				{Role: provider.RoleUser, Content: correctionPrompt(verr)},
				{Role: provider.RoleAssistant, Content: resp.Text},
			},
			Prompt:   "Fix the JSON.",
			JSONMode: true,
		}
		resp, err = b.Complete(ctx, correction)
		if err != nil {
			return Decision{}, err
		}
		a, verr = action.Parse(resp.Text)
	}
	if verr != nil {
		b.validationFailed(ctx, resp, verr)
		return Decision{}, NewError(StageValidation, b.redactor.Redact(verr.Error()), verr)
	}
	return Decision{Action: a, Response: resp}, nil
}

func (b *Brain) validationFailed(ctx context.Context, resp provider.RawResponse, err error) {
	msg := b.redactor.Redact(err.Error())
	data := map[string]any{}
	var ve *action.ValidationError
	if errors.As(err, &ve) {
		data["reason"] = string(ve.Reason)
		data["field"] = ve.Field
		data["kind"] = ve.Kind
	}
	logging.Entry(ctx).WithField("provider", resp.Provider).Warnf("invalid action payload: %s", msg)
	b.publish(ctx, hooks.EventValidationFailed, resp.Provider, msg, data)
}

// Ask runs a free-form completion for handlers that need the model's prose.
func (b *Brain) Ask(ctx context.Context, prompt string) (string, error) {
	resp, err := b.Complete(ctx, provider.Request{System: askSystemPrompt, Prompt: prompt})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (b *Brain) publish(ctx context.Context, event hooks.HookEvent, providerID, msg string, data map[string]any) {
	if b.bus == nil {
		return
	}
	evt := hooks.NewEvent(event, data)
	evt.Provider = providerID
	evt.ErrorMessage = msg
	evt.RequestID = logging.RequestIDFrom(ctx)
	b.bus.Publish(evt)
}
