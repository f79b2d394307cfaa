// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package orchestrator

import "github.com/traylinx/tess/internal/action"

// Handlers has one typed slot per action kind. A nil slot leaves the kind unregistered.
type Handlers struct {
	OpenApp       Handler[*action.OpenApp]
	ShellCommand  Handler[*action.ShellCommand]
	BrowserSearch Handler[*action.BrowserSearch]
	OpenURL       Handler[*action.OpenURL]
	SystemControl Handler[*action.SystemControl]
	FileOp        Handler[*action.FileOp]
	WhatsAppSend  Handler[*action.WhatsAppSend]
	TripPlanner   Handler[*action.TripPlanner]
	DocumentOp    Handler[*action.DocumentOp]
	Research      Handler[*action.Research]
	RunSkill      Handler[*action.RunSkill]
	Reply         Handler[*action.Reply]
	Error         Handler[*action.Error]
}

// Registered lists the kinds that have a handler, in declaration order.
func (h Handlers) Registered() []action.Kind {
	set := map[action.Kind]bool{
		action.KindOpenApp:       h.OpenApp != nil,
		action.KindShellCommand:  h.ShellCommand != nil,
		action.KindBrowserSearch: h.BrowserSearch != nil,
		action.KindOpenURL:       h.OpenURL != nil,
		action.KindSystemControl: h.SystemControl != nil,
		action.KindFileOp:        h.FileOp != nil,
		action.KindWhatsAppSend:  h.WhatsAppSend != nil,
		action.KindTripPlanner:   h.TripPlanner != nil,
		action.KindDocumentOp:    h.DocumentOp != nil,
		action.KindResearch:      h.Research != nil,
		action.KindRunSkill:      h.RunSkill != nil,
		action.KindReply:         h.Reply != nil,
		action.KindError:         h.Error != nil,
	}
	var out []action.Kind
	for _, k := range action.Kinds() {
		if set[k] {
			out = append(out, k)
		}
	}
	return out
}
