// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"fmt"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/tess/internal/config"
)

const (
	// EnvMode selects the adapter mode.
	EnvMode = "TESS_MODE"
	// ModeMock replaces every adapter with Mock.
	ModeMock = "MOCK"
)

// Factory hands out one shared adapter per wire protocol.
type Factory struct {
	openai *OpenAICompat
	gemini *Gemini
	ollama *Ollama
	mock   *Mock
	forced Adapter
}

// NewFactory builds adapters sharing client. TESS_MODE=MOCK forces the mock adapter.
func NewFactory(client *http.Client) *Factory {
	f := &Factory{
		openai: NewOpenAICompat(client),
		gemini: NewGemini(client),
		ollama: NewOllama(client),
		mock:   NewMock(),
	}
	if os.Getenv(EnvMode) == ModeMock {
		log.Info("TESS_MODE=MOCK detected, using mock provider adapter")
		f.forced = f.mock
	}
	return f
}

// For returns the adapter for cfg.Type.
func (f *Factory) For(cfg config.ProviderConfig) (Adapter, error) {
	if f.forced != nil {
		return f.forced, nil
	}
	switch cfg.Type {
	case config.TypeOpenAI, config.TypeGroq, config.TypeDeepSeek:
		return f.openai, nil
	case config.TypeGemini:
		return f.gemini, nil
	case config.TypeOllama:
		return f.ollama, nil
	case config.TypeMock:
		return f.mock, nil
	default:
		return nil, fmt.Errorf("provider %s: unsupported type %q", cfg.ID, cfg.Type)
	}
}

// Router dispatches Complete to the adapter matching the provider type.
func (f *Factory) Router() Adapter {
	return AdapterFunc(func(ctx context.Context, cfg config.ProviderConfig, key string, req Request) (RawResponse, error) {
		a, err := f.For(cfg)
		if err != nil {
			return RawResponse{}, &Error{Kind: KindMalformed, Provider: cfg.ID, Message: err.Error(), Err: err}
		}
		return a.Complete(ctx, cfg, key, req)
	})
}
