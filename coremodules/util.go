package coremodules

import (
	"strconv"

	"github.com/wippyai/hostbridge/value"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

func intField(m map[string]any, key string) int {
	n, _ := value.ToInt(m[key])
	return n
}
