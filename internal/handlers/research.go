// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/traylinx/tess/internal/action"
	"github.com/traylinx/tess/internal/orchestrator"
)

const maxResearchDepth = 10

var errNoBrain = errors.New("no language model available")

func researchPrompt(topic string, depth int) string {
	if depth <= 0 {
		depth = action.DefaultResearchDepth
	}
	if depth > maxResearchDepth {
		depth = maxResearchDepth
	}
	return fmt.Sprintf("Research the topic %q. Give a concise summary covering the %d most important points, "+
		"one short paragraph per point, followed by a one-sentence conclusion.", topic, depth)
}

func handleResearch(ctx context.Context, a *action.Research, sink orchestrator.Sink, brain orchestrator.Brain) (string, error) {
	if brain == nil {
		return "", errNoBrain
	}
	sink("[RESEARCH] Researching: " + a.Topic)
	return brain.Ask(ctx, researchPrompt(a.Topic, a.Depth))
}

type skills struct {
	runner SkillRunner
}

func (s skills) Handle(ctx context.Context, a *action.RunSkill, sink orchestrator.Sink, brain orchestrator.Brain) (string, error) {
	sink(fmt.Sprintf("[SKILL] Running '%s'...", a.Name))
	return s.runner.Run(ctx, a.Name, sink, brain)
}
