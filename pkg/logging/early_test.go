package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEarlyLog(t *testing.T) {
	var buf bytes.Buffer
	l := NewEarlyLogTo(&buf, "courier")

	l.Error("Failed to load config: %v", "no such file")
	l.Warn("API key missing\n")

	assert.Equal(t, "courier: error: Failed to load config: no such file\ncourier: warning: API key missing\n", buf.String())
}
