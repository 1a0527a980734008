package logging

import (
	"bytes"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter_Levels(t *testing.T) {
	pterm.DisableStyling()
	t.Cleanup(pterm.EnableStyling)

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false)
	logger.Debug("hidden detail")
	logger.Info("server ready", "port", 4100)

	out := buf.String()
	assert.NotContains(t, out, "hidden detail")
	assert.Contains(t, out, "server ready")
	assert.Contains(t, out, "4100")

	buf.Reset()
	NewWithWriter(&buf, true).Debug("shown detail")
	assert.Contains(t, buf.String(), "shown detail")
}
