//go:build sonic

package utils

import (
	"github.com/bytedance/sonic"
)

var (
	JSONMarshal       = sonic.Marshal
	JSONMarshalIndent = sonic.MarshalIndent
	JSONUnmarshal     = sonic.Unmarshal
)
