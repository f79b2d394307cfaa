// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package brain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/tess/internal/action"
	"github.com/traylinx/tess/internal/config"
	"github.com/traylinx/tess/internal/hooks"
	"github.com/traylinx/tess/internal/keypool"
	"github.com/traylinx/tess/internal/provider"
	"github.com/traylinx/tess/internal/util"
)

const (
	keyA1 = "sk-aaaaaaaaaaaaaaaa1111"
	keyA2 = "sk-aaaaaaaaaaaaaaaa2222"
	keyB1 = "gsk_bbbbbbbbbbbbbbbb3333"
)

type result struct {
	text string
	kind provider.ErrorKind
	msg  string
}

// scripted answers per key. Scripts are consumed in order; the last entry repeats.
type scripted struct {
	mu      sync.Mutex
	scripts map[string][]result
	calls   []string
}

func newScripted(scripts map[string][]result) *scripted {
	return &scripted{scripts: scripts}
}

func (s *scripted) Complete(_ context.Context, cfg config.ProviderConfig, key string, _ provider.Request) (provider.RawResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, cfg.ID+"/"+key)

	queue := s.scripts[key]
	if len(queue) == 0 {
		return provider.RawResponse{}, &provider.Error{Kind: provider.KindMalformed, Provider: cfg.ID, Message: "no script"}
	}
	r := queue[0]
	if len(queue) > 1 {
		s.scripts[key] = queue[1:]
	}
	if r.kind != "" {
		return provider.RawResponse{}, &provider.Error{Kind: r.kind, Provider: cfg.ID, Message: r.msg}
	}
	return provider.RawResponse{Text: r.text, Provider: cfg.ID, Kind: provider.ResponseJSON}, nil
}

func (s *scripted) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func testConfig(providers ...config.ProviderConfig) *config.Config {
	cfg := config.Default()
	cfg.Providers = providers
	return cfg
}

func twoProviders() *config.Config {
	return testConfig(
		config.ProviderConfig{ID: "alpha", Type: config.TypeOpenAI, Priority: 1, APIKeys: []string{keyA1, keyA2}},
		config.ProviderConfig{ID: "beta", Type: config.TypeGroq, Priority: 2, APIKeys: []string{keyB1}},
	)
}

func newBrain(t *testing.T, cfg *config.Config, adapter provider.Adapter, opts ...Option) (*Brain, *keypool.Pool) {
	t.Helper()
	pool, err := NewPool(cfg)
	require.NoError(t, err)
	return New(cfg, pool, adapter, opts...), pool
}

func statusOf(pool *keypool.Pool, key string) keypool.Credential {
	for _, c := range pool.Snapshot(nil) {
		if c.Key == key {
			return c
		}
	}
	return keypool.Credential{}
}

func TestComplete_FailsOverToNextProvider(t *testing.T) {
	adapter := newScripted(map[string][]result{
		keyA1: {{kind: provider.KindRateLimited}},
		keyA2: {{kind: provider.KindRateLimited}},
		keyB1: {{text: `{"action":"reply","content":"from beta"}`}},
	})
	b, pool := newBrain(t, twoProviders(), adapter)

	resp, err := b.Complete(context.Background(), provider.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "beta", resp.Provider)

	assert.Equal(t, keypool.StatusCoolingDown, statusOf(pool, keyA1).Status)
	assert.Equal(t, keypool.StatusCoolingDown, statusOf(pool, keyA2).Status)
	assert.Equal(t, keypool.StatusActive, statusOf(pool, keyB1).Status)
	assert.Equal(t, []string{"alpha/" + keyA1, "alpha/" + keyA2, "beta/" + keyB1}, adapter.Calls())
}

func TestComplete_AuthErrorRotatesWithoutConsumingAttempts(t *testing.T) {
	cfg := testConfig(config.ProviderConfig{ID: "alpha", Type: config.TypeOpenAI, APIKeys: []string{keyA1, keyA2, "sk-goodgoodgoodgood"}})
	cfg.Brain.AttemptsPerProvider = 1
	adapter := newScripted(map[string][]result{
		keyA1:                 {{kind: provider.KindAuth}},
		keyA2:                 {{kind: provider.KindAuth}},
		"sk-goodgoodgoodgood": {{text: "ok"}},
	})
	b, pool := newBrain(t, cfg, adapter)

	resp, err := b.Complete(context.Background(), provider.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, keypool.StatusExhausted, statusOf(pool, keyA1).Status)
	assert.Equal(t, keypool.StatusExhausted, statusOf(pool, keyA2).Status)
	assert.Len(t, adapter.Calls(), 3)
}

func TestComplete_RetryCapPerProvider(t *testing.T) {
	adapter := newScripted(map[string][]result{
		keyA1: {{kind: provider.KindTransient}},
		keyA2: {{kind: provider.KindMalformed}},
		keyB1: {{text: "done"}},
	})
	b, pool := newBrain(t, twoProviders(), adapter)

	_, err := b.Complete(context.Background(), provider.Request{})
	require.NoError(t, err)

	calls := adapter.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, []string{"alpha/" + keyA1, "alpha/" + keyA2, "alpha/" + keyA1, "beta/" + keyB1}, calls)

	// Transient failures keep keys selectable.
	assert.Equal(t, keypool.StatusActive, statusOf(pool, keyA1).Status)
	assert.Equal(t, 2, statusOf(pool, keyA1).ConsecutiveFailures)
	assert.Equal(t, keypool.StatusActive, statusOf(pool, keyA2).Status)
}

func TestComplete_SkipsProviderWithCoolingKeys(t *testing.T) {
	cfg := twoProviders()
	adapter := newScripted(map[string][]result{keyB1: {{text: "b"}}})
	b, pool := newBrain(t, cfg, adapter)

	for _, key := range []string{keyA1, keyA2} {
		lease, err := pool.Acquire("alpha")
		require.NoError(t, err)
		require.Equal(t, key, lease.Key())
		pool.Report(lease, keypool.OutcomeRateLimited, keypool.RetryAfter(time.Hour))
	}

	resp, err := b.Complete(context.Background(), provider.Request{})
	require.NoError(t, err)
	assert.Equal(t, "beta", resp.Provider)
	assert.Equal(t, []string{"beta/" + keyB1}, adapter.Calls())
}

func TestComplete_AllProvidersExhausted(t *testing.T) {
	bus := hooks.NewEventBus()
	defer bus.Shutdown()

	var mu sync.Mutex
	events := map[hooks.HookEvent]int{}
	for _, e := range hooks.AllEvents() {
		bus.Subscribe(e, func(ctx *hooks.EventContext) {
			mu.Lock()
			events[ctx.Event]++
			mu.Unlock()
		})
	}

	adapter := newScripted(map[string][]result{
		keyA1: {{kind: provider.KindRateLimited, msg: "quota for " + keyA1}},
		keyA2: {{kind: provider.KindAuth, msg: "invalid key " + keyA2}},
		keyB1: {{kind: provider.KindTransient, msg: "upstream down"}},
	})
	b, _ := newBrain(t, twoProviders(), adapter, WithEventBus(bus))

	_, err := b.Complete(context.Background(), provider.Request{})
	require.Error(t, err)

	be, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, StageBrain, be.Stage)
	assert.True(t, errors.Is(err, ErrProvidersExhausted))
	assert.True(t, strings.HasPrefix(be.UserMessage(), "[BRAIN] All providers are unavailable"))
	assert.NotContains(t, be.UserMessage(), "\n")
	assert.Contains(t, be.UserMessage(), "alpha, beta")

	for _, a := range be.Attempts {
		for _, key := range []string{keyA1, keyA2, keyB1} {
			assert.NotContains(t, a.Message, key)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, events[hooks.EventProvidersExhausted])
	assert.Equal(t, 1, events[hooks.EventCredentialCooling])
	assert.Equal(t, 1, events[hooks.EventCredentialExhausted])
	assert.Equal(t, len(be.Attempts), events[hooks.EventProviderFailed])
}

func TestComplete_NoUsableCredentials(t *testing.T) {
	cfg := testConfig(config.ProviderConfig{ID: "alpha", Type: config.TypeOpenAI})
	b, _ := newBrain(t, cfg, newScripted(nil))

	_, err := b.Complete(context.Background(), provider.Request{})
	be, ok := AsError(err)
	require.True(t, ok)
	assert.Contains(t, be.Message, "no usable credentials")
	assert.Empty(t, be.Attempts)
}

func TestComplete_NoProviders(t *testing.T) {
	b, _ := newBrain(t, testConfig(), newScripted(nil))
	_, err := b.Complete(context.Background(), provider.Request{})
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestComplete_RedactsUnregisteredCredentialShapes(t *testing.T) {
	leaked := "AIzaSyD-abcdefghijklmnopqrstuvwx"
	adapter := newScripted(map[string][]result{
		keyA1: {{kind: provider.KindTransient, msg: "bad request ?key=" + leaked}},
		keyA2: {{kind: provider.KindTransient, msg: "Authorization: Bearer abc.def.ghi"}},
		keyB1: {{kind: provider.KindTransient, msg: `{"api_key":"hunter2hunter2"}`}},
	})
	b, _ := newBrain(t, twoProviders(), adapter, WithRedactor(util.NewRedactor()))

	_, err := b.Complete(context.Background(), provider.Request{})
	be, ok := AsError(err)
	require.True(t, ok)
	require.NotEmpty(t, be.Attempts)
	for _, a := range be.Attempts {
		assert.NotContains(t, a.Message, leaked)
		assert.NotContains(t, a.Message, "abc.def.ghi")
		assert.NotContains(t, a.Message, "hunter2hunter2")
	}
}

func TestComplete_CancelledDoesNotReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := provider.AdapterFunc(func(ctx context.Context, cfg config.ProviderConfig, key string, req provider.Request) (provider.RawResponse, error) {
		cancel()
		return provider.RawResponse{}, &provider.Error{Kind: provider.KindTransient, Provider: cfg.ID, Err: ctx.Err()}
	})
	b, pool := newBrain(t, twoProviders(), adapter)

	_, err := b.Complete(ctx, provider.Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	for _, c := range pool.Snapshot(nil) {
		assert.Equal(t, keypool.StatusActive, c.Status)
		assert.Zero(t, c.ConsecutiveFailures)
	}

	_, err = b.Complete(ctx, provider.Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecide_ValidAction(t *testing.T) {
	adapter := newScripted(map[string][]result{
		keyA1: {{text: `{"action":"open_app","target":"notepad"}`}},
	})
	b, _ := newBrain(t, twoProviders(), adapter)

	d, err := b.Decide(context.Background(), "open notepad", nil)
	require.NoError(t, err)
	open, ok := d.Action.(*action.OpenApp)
	require.True(t, ok)
	assert.Equal(t, "notepad", open.Target)
	assert.Equal(t, "alpha", d.Response.Provider)
}

func TestDecide_RepromptsOnce(t *testing.T) {
	var requests []provider.Request
	adapter := provider.AdapterFunc(func(_ context.Context, cfg config.ProviderConfig, _ string, req provider.Request) (provider.RawResponse, error) {
		requests = append(requests, req)
		if len(requests) == 1 {
			return provider.RawResponse{Text: `{"action":"open_app"}`, Provider: cfg.ID}, nil
		}
		return provider.RawResponse{Text: `{"action":"open_app","target":"calc"}`, Provider: cfg.ID}, nil
	})

	bus := hooks.NewEventBus()
	defer bus.Shutdown()
	var failures []*hooks.EventContext
	bus.Subscribe(hooks.EventValidationFailed, func(ctx *hooks.EventContext) { failures = append(failures, ctx) })

	b, _ := newBrain(t, twoProviders(), adapter, WithEventBus(bus))
	d, err := b.Decide(context.Background(), "open calculator", nil)
	require.NoError(t, err)
	assert.Equal(t, "calc", d.Action.(*action.OpenApp).Target)

	require.Len(t, requests, 2)
	assert.Equal(t, correctionSystemPrompt, requests[1].System)
	require.Len(t, requests[1].History, 2)
	assert.Contains(t, requests[1].History[0].Content, "Your previous JSON was invalid")
	assert.Contains(t, requests[1].History[0].Content, "open_app, shell_command")
	assert.Equal(t, `{"action":"open_app"}`, requests[1].History[1].Content)

	require.Len(t, failures, 1)
	assert.Equal(t, "missing_field", failures[0].Data["reason"])
	assert.Equal(t, "target", failures[0].Data["field"])
}

func TestDecide_SurfacesValidationError(t *testing.T) {
	cfg := twoProviders()
	cfg.Brain.RepromptAttempts = 0
	adapter := newScripted(map[string][]result{keyA1: {{text: `{"action":"unknown_kind"}`}}})
	b, _ := newBrain(t, cfg, adapter)

	_, err := b.Decide(context.Background(), "do something odd", nil)
	be, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, StageValidation, be.Stage)
	assert.True(t, strings.HasPrefix(be.UserMessage(), "[VALIDATION] unknown_action_type"))

	var ve *action.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, action.ReasonUnknownType, ve.Reason)
	assert.Len(t, adapter.Calls(), 1)
}

func TestDecide_ProviderFailureDuringReprompt(t *testing.T) {
	calls := 0
	adapter := provider.AdapterFunc(func(_ context.Context, cfg config.ProviderConfig, _ string, _ provider.Request) (provider.RawResponse, error) {
		calls++
		if calls == 1 {
			return provider.RawResponse{Text: "I think you want notepad", Provider: cfg.ID}, nil
		}
		return provider.RawResponse{}, &provider.Error{Kind: provider.KindAuth, Provider: cfg.ID}
	})
	b, _ := newBrain(t, twoProviders(), adapter)

	_, err := b.Decide(context.Background(), "open notepad", nil)
	assert.ErrorIs(t, err, ErrProvidersExhausted)
}

func TestAsk(t *testing.T) {
	var got provider.Request
	adapter := provider.AdapterFunc(func(_ context.Context, cfg config.ProviderConfig, _ string, req provider.Request) (provider.RawResponse, error) {
		got = req
		return provider.RawResponse{Text: "  Paris.\n", Provider: cfg.ID}, nil
	})
	b, _ := newBrain(t, twoProviders(), adapter)

	answer, err := b.Ask(context.Background(), "capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)
	assert.False(t, got.JSONMode)
	assert.Equal(t, askSystemPrompt, got.System)
}

func TestNewPool(t *testing.T) {
	cfg := testConfig(
		config.ProviderConfig{ID: "local", Type: config.TypeOllama},
		config.ProviderConfig{ID: "nokeys", Type: config.TypeOpenAI},
		config.ProviderConfig{ID: "dup", Type: config.TypeGroq, APIKeys: []string{keyB1, keyB1}},
	)
	cfg.KeyPool.DisableCooling = true
	pool, err := NewPool(cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"local", "dup"}, pool.Providers())
	lease, err := pool.Acquire("local")
	require.NoError(t, err)
	assert.Equal(t, "", lease.Key())

	lease, err = pool.Acquire("dup")
	require.NoError(t, err)
	c := pool.Report(lease, keypool.OutcomeRateLimited)
	assert.Equal(t, keypool.StatusActive, c.Status)
	assert.Equal(t, 1, pool.Available("dup"))
}

func TestStatus(t *testing.T) {
	b, _ := newBrain(t, twoProviders(), newScripted(nil))
	status := b.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "alpha", status[0].ID)
	assert.Equal(t, 2, status[0].Available)
	require.Len(t, status[0].Credentials, 2)
	assert.Equal(t, util.HideAPIKey(keyA1), status[0].Credentials[0].Key)
	assert.NotEqual(t, keyA1, status[0].Credentials[0].Key)
}

func TestSystemPromptListsActions(t *testing.T) {
	p := SystemPrompt()
	for _, k := range action.Kinds() {
		assert.Contains(t, p, string(k))
	}
}
