// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package action

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

// Reason names why a payload was rejected.
type Reason string

const (
	ReasonNoPayload    Reason = "no_structured_payload"
	ReasonUnknownType  Reason = "unknown_action_type"
	ReasonMissingField Reason = "missing_field"
	ReasonTypeMismatch Reason = "type_mismatch"
	ReasonInvalidValue Reason = "invalid_value"
)

// DiscriminantField holds the action kind in every payload.
const DiscriminantField = "action"

// ValidationError is returned by Parse. No partial action accompanies it.
type ValidationError struct {
	Reason Reason
	// Field is the offending field, empty for no_structured_payload.
	Field string
	// Kind is the discriminant value when one was read.
	Kind string
	// Detail is a short human-readable explanation.
	Detail string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Reason))
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %q)", e.Field)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Parse locates the first well-formed JSON object in raw and validates it against the
// schema of the kind named by its "action" field.
func Parse(raw string) (Action, error) {
	payload, ok := FirstObject(raw)
	if !ok {
		return nil, &ValidationError{Reason: ReasonNoPayload, Detail: "no JSON object found in model output"}
	}
	return ParseObject(payload)
}

// ParseObject validates a single JSON object.
func ParseObject(payload string) (Action, error) {
	if !gjson.Valid(payload) {
		return nil, &ValidationError{Reason: ReasonNoPayload, Detail: "payload is not valid JSON"}
	}
	obj := gjson.Parse(payload)
	if !obj.IsObject() {
		return nil, &ValidationError{Reason: ReasonNoPayload, Detail: "payload is not a JSON object"}
	}

	disc := obj.Get(DiscriminantField)
	if !disc.Exists() || disc.Type == gjson.Null {
		return nil, &ValidationError{Reason: ReasonMissingField, Field: DiscriminantField, Detail: "payload has no action kind"}
	}
	if disc.Type != gjson.String {
		return nil, &ValidationError{Reason: ReasonTypeMismatch, Field: DiscriminantField, Detail: "action kind must be a string"}
	}
	kind := strings.TrimSpace(disc.String())
	v, known := variantIndex[Kind(kind)]
	if !known {
		return nil, &ValidationError{Reason: ReasonUnknownType, Field: DiscriminantField, Kind: kind, Detail: fmt.Sprintf("unknown action type %q", kind)}
	}

	for _, f := range commonFields {
		if err := checkField(obj, f, kind); err != nil {
			return nil, err
		}
	}
	for _, f := range v.fields {
		if err := checkField(obj, f, kind); err != nil {
			return nil, err
		}
	}

	base := Base{Reason: obj.Get("reason").String(), IsDangerous: obj.Get("is_dangerous").Bool()}
	return v.build(obj, base), nil
}

func checkField(obj gjson.Result, f field, kind string) *ValidationError {
	r := obj.Get(f.name)
	if !r.Exists() || r.Type == gjson.Null {
		if f.required {
			return &ValidationError{Reason: ReasonMissingField, Field: f.name, Kind: kind, Detail: fmt.Sprintf("%s requires %s", kind, f.name)}
		}
		return nil
	}

	if !matchesType(r, f.typ) {
		return &ValidationError{Reason: ReasonTypeMismatch, Field: f.name, Kind: kind, Detail: fmt.Sprintf("%s must be a %s", f.name, f.typ)}
	}
	if f.typ == typeString && f.required && strings.TrimSpace(r.String()) == "" {
		return &ValidationError{Reason: ReasonMissingField, Field: f.name, Kind: kind, Detail: fmt.Sprintf("%s must not be empty", f.name)}
	}
	if len(f.enum) > 0 && !slices.Contains(f.enum, r.String()) {
		return &ValidationError{Reason: ReasonInvalidValue, Field: f.name, Kind: kind, Detail: fmt.Sprintf("%s must be one of %s", f.name, strings.Join(f.enum, ", "))}
	}
	return nil
}

func matchesType(r gjson.Result, t fieldType) bool {
	switch t {
	case typeString:
		return r.Type == gjson.String
	case typeBool:
		return r.Type == gjson.True || r.Type == gjson.False
	case typeNumber:
		return r.Type == gjson.Number
	case typeInteger:
		return r.Type == gjson.Number && r.Num == math.Trunc(r.Num)
	}
	return false
}

// FirstObject returns the first balanced {...} span of text that is valid JSON.
// Candidates are tried in order of their opening brace, so a fenced ```json block or
// an object surrounded by prose is found the same way.
func FirstObject(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end, ok := matchBrace(text, start); ok {
			candidate := text[start : end+1]
			if gjson.Valid(candidate) {
				return candidate, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace finds the brace closing the one at start, skipping string literals.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
