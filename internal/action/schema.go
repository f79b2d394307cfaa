// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package action

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

type fieldType int

const (
	typeString fieldType = iota
	typeBool
	typeNumber
	typeInteger
)

func (t fieldType) String() string {
	switch t {
	case typeBool:
		return "boolean"
	case typeNumber:
		return "number"
	case typeInteger:
		return "integer"
	default:
		return "string"
	}
}

type field struct {
	name     string
	typ      fieldType
	required bool
	enum     []string
}

func required(name string) field { return field{name: name, typ: typeString, required: true} }
func optional(name string) field { return field{name: name, typ: typeString} }
func oneOf(name string, v ...string) field {
	return field{name: name, typ: typeString, required: true, enum: v}
}

// variant describes one action kind: its fields and how to build it from a validated payload.
type variant struct {
	kind   Kind
	fields []field
	build  func(obj gjson.Result, base Base) Action
}

var commonFields = []field{
	{name: "reason", typ: typeString},
	{name: "is_dangerous", typ: typeBool},
}

// variants is ordered; Describe lists kinds in this order.
var variants = []variant{
	{KindOpenApp, []field{required("target")}, func(o gjson.Result, b Base) Action {
		return &OpenApp{Base: b, Target: str(o, "target")}
	}},
	{KindShellCommand, []field{required("command")}, func(o gjson.Result, b Base) Action {
		return &ShellCommand{Base: b, Command: str(o, "command")}
	}},
	{KindBrowserSearch, []field{required("query")}, func(o gjson.Result, b Base) Action {
		return &BrowserSearch{Base: b, Query: str(o, "query")}
	}},
	{KindOpenURL, []field{required("url")}, func(o gjson.Result, b Base) Action {
		return &OpenURL{Base: b, URL: str(o, "url")}
	}},
	{KindSystemControl, []field{oneOf("sub_action", SystemListProcesses, SystemVolumeUp, SystemVolumeDown, SystemMute, SystemLock, SystemScreenshot)}, func(o gjson.Result, b Base) Action {
		return &SystemControl{Base: b, SubAction: str(o, "sub_action")}
	}},
	{KindFileOp, []field{oneOf("sub_action", FileRead, FileWrite, FileList, FilePatch), required("path"), optional("content"), optional("search_text"), optional("replace_text")}, func(o gjson.Result, b Base) Action {
		return &FileOp{Base: b, SubAction: str(o, "sub_action"), Path: str(o, "path"), Content: str(o, "content"), SearchText: str(o, "search_text"), ReplaceText: str(o, "replace_text")}
	}},
	{KindWhatsAppSend, []field{required("contact"), required("message")}, func(o gjson.Result, b Base) Action {
		return &WhatsAppSend{Base: b, Contact: str(o, "contact"), Message: str(o, "message")}
	}},
	{KindTripPlanner, []field{required("destination"), optional("dates"), {name: "budget", typ: typeNumber}, optional("origin"), optional("transport_mode")}, func(o gjson.Result, b Base) Action {
		budget := o.Get("budget")
		return &TripPlanner{Base: b, Destination: str(o, "destination"), Dates: str(o, "dates"), Budget: budget.Float(), HasBudget: budget.Exists() && budget.Type == gjson.Number, Origin: str(o, "origin"), TransportMode: str(o, "transport_mode")}
	}},
	{KindDocumentOp, []field{oneOf("sub_action", DocumentExtractText, DocumentSummarize, DocumentOCR, DocumentAnalyzeImage), required("path")}, func(o gjson.Result, b Base) Action {
		return &DocumentOp{Base: b, SubAction: str(o, "sub_action"), Path: str(o, "path")}
	}},
	{KindResearch, []field{required("topic"), {name: "depth", typ: typeInteger}}, func(o gjson.Result, b Base) Action {
		depth := DefaultResearchDepth
		if d := o.Get("depth"); d.Type == gjson.Number && d.Int() > 0 {
			depth = int(d.Int())
		}
		return &Research{Base: b, Topic: str(o, "topic"), Depth: depth}
	}},
	{KindRunSkill, []field{required("name")}, func(o gjson.Result, b Base) Action {
		return &RunSkill{Base: b, Name: str(o, "name")}
	}},
	{KindReply, []field{required("content")}, func(o gjson.Result, b Base) Action {
		return &Reply{Base: b, Content: str(o, "content")}
	}},
	{KindError, nil, func(_ gjson.Result, b Base) Action {
		return &Error{Base: b}
	}},
}

var variantIndex = func() map[Kind]*variant {
	m := make(map[Kind]*variant, len(variants))
	for i := range variants {
		m[variants[i].kind] = &variants[i]
	}
	return m
}()

func str(o gjson.Result, name string) string {
	return o.Get(name).String()
}

// Kinds returns every action kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(variants))
	for i, v := range variants {
		out[i] = v.kind
	}
	return out
}

// Known reports whether k is a declared action kind.
func Known(k Kind) bool {
	_, ok := variantIndex[k]
	return ok
}

// Describe renders the action catalogue for prompts, one kind per line:
//
//	open_app: target (string, required)
func Describe() string {
	var b strings.Builder
	for _, v := range variants {
		b.WriteString(string(v.kind))
		b.WriteString(":")
		if len(v.fields) == 0 {
			b.WriteString(" no fields")
		}
		for i, f := range v.fields {
			if i > 0 {
				b.WriteString(",")
			}
			req := "optional"
			if f.required {
				req = "required"
			}
			if len(f.enum) > 0 {
				fmt.Fprintf(&b, " %s (%s, one of %s)", f.name, req, strings.Join(f.enum, "|"))
			} else {
				fmt.Fprintf(&b, " %s (%s, %s)", f.name, f.typ, req)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("all actions: reason (string, optional), is_dangerous (boolean, optional)\n")
	return b.String()
}
