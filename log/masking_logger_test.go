/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/billhaggle/reqguard/log"
	"github.com/billhaggle/reqguard/log/logtest"
)

func TestMaskingLogger(t *testing.T) {
	recorder := logtest.NewRecorder()
	logger := log.NewMaskingLogger(recorder, log.NewMasker(log.DefaultMasks))

	logger.With(log.String("header", "Authorization: Bearer xyz\r\n")).Info(
		`upstream body {"api_key":"k1"}`,
		log.Error(errors.New("key sk-0123456789abcdef is revoked")),
		log.Strings("urls", []string{"/a?access_token=t0k3n", "/b"}),
		log.Int("attempt", 2),
	)

	entries := recorder.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, `upstream body {"api_key": "***"}`, entries[0].Text)

	headerField, found := entries[0].FindField("header")
	require.True(t, found)
	require.Equal(t, "Authorization: ***\r\n", string(headerField.Bytes))

	errField, found := entries[0].FindField("error")
	require.True(t, found)
	require.EqualError(t, errField.Any.(error), "key sk-*** is revoked")

	urlsField, found := entries[0].FindField("urls")
	require.True(t, found)
	require.EqualValues(t, []string{"/a?access_token=***", "/b"}, urlsField.Any)

	attemptField, found := entries[0].FindField("attempt")
	require.True(t, found)
	require.EqualValues(t, 2, attemptField.Int)
}

func TestMaskingLoggerFormatted(t *testing.T) {
	recorder := logtest.NewRecorder()
	logger := log.NewMaskingLogger(recorder, log.NewMasker(log.DefaultMasks))
	logger.Warnf("retrying with %s", "sk-abcdefghijk")
	entry, found := recorder.FindEntry("retrying with sk-***")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, entry.Level)
}
