// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package action defines the closed set of actions the agent can perform and the
// validator that turns a model completion into exactly one of them.
//
// Every variant is a struct implementing the sealed Action interface. A value of any
// variant has passed Parse, so its required fields are present and correctly typed.
package action

// Kind is the "action" discriminant of a payload.
type Kind string

const (
	KindOpenApp       Kind = "open_app"
	KindShellCommand  Kind = "shell_command"
	KindBrowserSearch Kind = "browser_search"
	KindOpenURL       Kind = "open_url"
	KindSystemControl Kind = "system_control"
	KindFileOp        Kind = "file_op"
	KindWhatsAppSend  Kind = "whatsapp_send"
	KindTripPlanner   Kind = "trip_planner_op"
	KindDocumentOp    Kind = "document_op"
	KindResearch      Kind = "research_op"
	KindRunSkill      Kind = "run_skill"
	KindReply         Kind = "reply"
	KindError         Kind = "error"
)

// Action is implemented only by the variant types in this package.
type Action interface {
	Kind() Kind
	Common() Base
	sealed()
}

// Base carries the fields every payload may set.
type Base struct {
	// Reason is the model's explanation of why it chose the action.
	Reason string `json:"reason,omitempty"`
	// IsDangerous is the model's own flag for destructive operations.
	IsDangerous bool `json:"is_dangerous,omitempty"`
}

// Common returns the shared fields.
func (b Base) Common() Base { return b }

func (Base) sealed() {}

// OpenApp launches a desktop application.
type OpenApp struct {
	Base
	Target string `json:"target"`
}

// ShellCommand runs a command through the system shell.
type ShellCommand struct {
	Base
	Command string `json:"command"`
}

// BrowserSearch opens a web search for Query.
type BrowserSearch struct {
	Base
	Query string `json:"query"`
}

// OpenURL opens URL in the default browser.
type OpenURL struct {
	Base
	URL string `json:"url"`
}

// System control operations.
const (
	SystemListProcesses = "list_processes"
	SystemVolumeUp      = "volume_up"
	SystemVolumeDown    = "volume_down"
	SystemMute          = "mute"
	SystemLock          = "lock"
	SystemScreenshot    = "screenshot"
)

// SystemControl performs an OS-level operation.
type SystemControl struct {
	Base
	SubAction string `json:"sub_action"`
}

// File operations.
const (
	FileRead  = "read"
	FileWrite = "write"
	FileList  = "list"
	FilePatch = "patch"
)

// FileOp reads, writes, lists or patches a file.
type FileOp struct {
	Base
	SubAction   string `json:"sub_action"`
	Path        string `json:"path"`
	Content     string `json:"content,omitempty"`
	SearchText  string `json:"search_text,omitempty"`
	ReplaceText string `json:"replace_text,omitempty"`
}

// WhatsAppSend sends Message to Contact.
type WhatsAppSend struct {
	Base
	Contact string `json:"contact"`
	Message string `json:"message"`
}

// TripPlanner plans a trip. Only Destination is required.
type TripPlanner struct {
	Base
	Destination   string  `json:"destination"`
	Dates         string  `json:"dates,omitempty"`
	Budget        float64 `json:"budget,omitempty"`
	HasBudget     bool    `json:"-"`
	Origin        string  `json:"origin,omitempty"`
	TransportMode string  `json:"transport_mode,omitempty"`
}

// Document operations.
const (
	DocumentExtractText  = "extract_text"
	DocumentSummarize    = "summarize"
	DocumentOCR          = "ocr"
	DocumentAnalyzeImage = "analyze_image"
)

// DocumentOp processes the document at Path.
type DocumentOp struct {
	Base
	SubAction string `json:"sub_action"`
	Path      string `json:"path"`
}

// DefaultResearchDepth applies when a research_op payload omits depth.
const DefaultResearchDepth = 3

// Research investigates Topic to the given depth.
type Research struct {
	Base
	Topic string `json:"topic"`
	Depth int    `json:"depth"`
}

// RunSkill runs the named Lua skill.
type RunSkill struct {
	Base
	Name string `json:"name"`
}

// Reply answers the user directly.
type Reply struct {
	Base
	Content string `json:"content"`
}

// Error is the model signalling it could not produce an action. Reason explains why.
type Error struct {
	Base
}

func (*OpenApp) Kind() Kind       { return KindOpenApp }
func (*ShellCommand) Kind() Kind  { return KindShellCommand }
func (*BrowserSearch) Kind() Kind { return KindBrowserSearch }
func (*OpenURL) Kind() Kind       { return KindOpenURL }
func (*SystemControl) Kind() Kind { return KindSystemControl }
func (*FileOp) Kind() Kind        { return KindFileOp }
func (*WhatsAppSend) Kind() Kind  { return KindWhatsAppSend }
func (*TripPlanner) Kind() Kind   { return KindTripPlanner }
func (*DocumentOp) Kind() Kind    { return KindDocumentOp }
func (*Research) Kind() Kind      { return KindResearch }
func (*RunSkill) Kind() Kind      { return KindRunSkill }
func (*Reply) Kind() Kind         { return KindReply }
func (*Error) Kind() Kind         { return KindError }
