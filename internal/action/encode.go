// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package action

import (
	json "github.com/goccy/go-json"
	"github.com/tidwall/sjson"
)

// Encode renders a as the JSON payload Parse accepts, discriminant included.
func Encode(a Action) ([]byte, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, DiscriminantField, string(a.Kind()))
}
