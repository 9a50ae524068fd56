package log

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)

	_, err = New(Config{Output: OutputFile})
	assert.Error(t, err)

	l, err := New(Config{Level: "debug", Format: FormatJSON, Output: OutputFile, File: filepath.Join(t.TempDir(), "xnet.log")})
	require.NoError(t, err)
	l.Debugf("written to %s", "file")
}

func TestLogrusLoggerFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)

	l := NewLogrusLogger(base).
		WithField("host", "example.test").
		WithFields(map[string]interface{}{"port": 80}).
		WithError(errors.New("boom"))
	l.Infof("connected %d", 1)

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, "connected 1", entry.Message)
	assert.Equal(t, "example.test", entry.Data["host"])
	assert.Equal(t, 80, entry.Data["port"])
	assert.EqualError(t, entry.Data[logrus.ErrorKey].(error), "boom")
}

func TestDefaultAndOr(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	base, hook := test.NewNullLogger()
	custom := NewLogrusLogger(base)
	SetDefault(custom)
	SetDefault(nil)

	Or(nil).Warnf("via default")
	assert.Len(t, hook.Entries, 1)
	assert.Same(t, custom, Or(custom))
}
