// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package brain

import (
	"fmt"
	"strings"

	"github.com/traylinx/tess/internal/action"
)

const askSystemPrompt = "You are TESS, a concise assistant. Answer the request directly in plain text."

const correctionSystemPrompt = "You are a JSON correction assistant."

// SystemPrompt instructs the model to answer with exactly one action object.
func SystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are TESS, an intelligent desktop agent.\n\n")
	b.WriteString("CORE GOAL: Translate the user's natural language request into exactly one structured JSON action.\n\n")
	b.WriteString("RESPONSE FORMAT:\nOutput ONLY one valid JSON object. No markdown, no explanations.\n")
	b.WriteString(`{"action": "<action_type>", "reason": "brief explanation", "is_dangerous": false, ...fields}`)
	b.WriteString("\n\nACTIONS:\n")
	b.WriteString(action.Describe())
	b.WriteString("\nRULES:\n")
	b.WriteString("- Set is_dangerous to true for commands that delete data, stop processes or change system state.\n")
	b.WriteString("- Use reply for conversation and questions you can answer directly.\n")
	b.WriteString("- Use error with a reason when the request cannot be fulfilled.\n")
	return b.String()
}

func correctionPrompt(err error) string {
	kinds := action.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return fmt.Sprintf("Your previous JSON was invalid. Error: %v\n\nValid actions are: %s\n\nOutput ONLY corrected JSON.",
		err, strings.Join(names, ", "))
}
