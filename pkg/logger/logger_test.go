package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	req := require.New(t)
	req.Equal(LevelDebug, ParseLevel("DEBUG"))
	req.Equal(LevelError, ParseLevel(" error "))
	req.Equal(LevelInfo, ParseLevel("info"))
	req.Equal(LevelInfo, ParseLevel("verbose"))
}

func TestLogger_LevelGate(t *testing.T) {
	req := require.New(t)
	var out, errOut bytes.Buffer
	l := NewWithWriters(&out, &errOut)

	l.Debug("hidden %d", 1)
	l.Info("shown %d", 2)
	req.NotContains(out.String(), "hidden 1")
	req.Contains(out.String(), "shown 2")

	l.SetLevel(LevelError)
	l.Info("quiet")
	l.Error("loud")
	req.NotContains(out.String(), "quiet")
	req.Contains(errOut.String(), "loud")

	l.SetLevel(LevelDebug)
	l.Debug("visible")
	req.Contains(out.String(), "DEBUG: ")
}
