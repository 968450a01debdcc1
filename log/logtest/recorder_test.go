/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/billhaggle/reqguard/log"
)

func TestRecorder(t *testing.T) {
	logRecorder := NewRecorder()
	logRecorder.Warn("message1", log.Int("num", 10), log.String("str", "abc"))
	logRecorder.With(log.String("policy", "strict")).Info("message2")

	require.Equal(t, 2, len(logRecorder.Entries()))
	require.Equal(t, 1, logRecorder.CountByLevel(log.LevelWarn))

	_, found := logRecorder.FindEntry("foobar")
	require.False(t, found)

	logEntry, found := logRecorder.FindEntry("message1")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, logEntry.Level)

	logFieldNum, found := logEntry.FindField("num")
	require.True(t, found)
	require.Equal(t, 10, int(logFieldNum.Int))

	logFieldStr, found := logEntry.FindField("str")
	require.True(t, found)
	require.Equal(t, "abc", string(logFieldStr.Bytes))

	logEntry, found = logRecorder.FindEntry("message2")
	require.True(t, found)
	_, found = logEntry.FindField("policy")
	require.True(t, found)

	logRecorder.Reset()
	require.Empty(t, logRecorder.Entries())
}
