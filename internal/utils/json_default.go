//go:build !sonic

package utils

import (
	"github.com/goccy/go-json"
)

var (
	JSONMarshal       = json.Marshal
	JSONMarshalIndent = json.MarshalIndent
	JSONUnmarshal     = json.Unmarshal
)
