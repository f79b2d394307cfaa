// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func getCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warnf("tokenizer unavailable, falling back to estimates: %v", err)
			return
		}
		codec = c
	})
	return codec
}

// CountTokens returns the cl100k token count of text, or a len/4 estimate
// when the tokenizer cannot be loaded.
func CountTokens(text string) int {
	if c := getCodec(); c != nil {
		ids, _, err := c.Encode(text)
		if err == nil {
			return len(ids)
		}
	}
	return (len(text) + 3) / 4
}

// TrimHistory drops the oldest messages until the rest fits in maxTokens.
// maxTokens <= 0 returns history unchanged. The newest message is always kept.
func TrimHistory(history []Message, maxTokens int) []Message {
	if maxTokens <= 0 || len(history) == 0 {
		return history
	}
	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		// 4 tokens of per-message framing, as in the OpenAI chat format.
		n := CountTokens(history[i].Content) + 4
		if total+n > maxTokens && start < len(history) {
			break
		}
		total += n
		start = i
	}
	return history[start:]
}
