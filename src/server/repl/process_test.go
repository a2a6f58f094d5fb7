package repl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/uri"
)

func testQuery() LocationQuery {
	return LocationQuery{
		Module:     "Foo",
		File:       uri.File("/proj/src/Foo.hs"),
		StartLine:  10,
		StartCol:   5,
		EndLine:    10,
		EndCol:     11,
		Identifier: "bar",
	}
}

// startScriptSession runs a shell loop standing in for the analysis process.
func startScriptSession(t *testing.T, script string) *ProcessSession {
	t.Helper()
	s := NewProcessSession("sh", []string{"-c", script}, "", "")
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		assert.NoError(t, s.Stop())
	})
	return s
}

func TestProcessSession_StartWaitsForPrompt(t *testing.T) {
	s := startScriptSession(t, `echo '*>'; while read line; do echo '*>'; done`)
	assert.True(t, s.IsLoaded())
	assert.False(t, s.IsBusy())
}

func TestProcessSession_FindLocationInfoCollectsReply(t *testing.T) {
	s := startScriptSession(t,
		`echo '*>'; while read line; do echo '/proj/src/Bar.hs:(3,9)-(3,12)'; echo '*>'; done`)

	resp, err := s.FindLocationInfo(context.Background(), testQuery())
	require.NoError(t, err)

	require.Len(t, resp.Stdout, 1)
	assert.Equal(t, "/proj/src/Bar.hs:(3,9)-(3,12)", resp.Stdout[0])
	assert.Empty(t, resp.Stderr)
	assert.False(t, s.IsBusy())
}

func TestProcessSession_StderrIsCollectedSeparately(t *testing.T) {
	s := startScriptSession(t,
		`echo '*>'; while read line; do echo 'boom' >&2; sleep 0.1; echo '*>'; done`)

	resp, err := s.FindLocationInfo(context.Background(), testQuery())
	require.NoError(t, err)

	assert.Empty(t, resp.Stdout)
	assert.Equal(t, []string{"boom"}, resp.Stderr)
}

func TestProcessSession_SecondRequestFailsFastWhileBusy(t *testing.T) {
	s := startScriptSession(t,
		`echo '*>'; while read line; do sleep 1; echo '*>'; done`)

	first := make(chan error, 1)
	go func() {
		_, err := s.FindLocationInfo(context.Background(), testQuery())
		first <- err
	}()

	// Give the first request time to take the session.
	assert.Eventually(t, s.IsBusy, time.Second, 5*time.Millisecond)

	_, err := s.FindLocationInfo(context.Background(), testQuery())
	assert.ErrorIs(t, err, ErrSessionBusy)

	require.NoError(t, <-first)
}

func TestProcessSession_CancellationMarksSessionNotLoaded(t *testing.T) {
	s := startScriptSession(t,
		`echo '*>'; while read line; do sleep 5; echo '*>'; done`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.FindLocationInfo(ctx, testQuery())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.IsLoaded(), "an abandoned reply poisons the stream until reload")
}

func TestProcessSession_DoubleStartRejected(t *testing.T) {
	s := startScriptSession(t, `echo '*>'; while read line; do echo '*>'; done`)
	assert.Error(t, s.Start(context.Background()))
}

func TestSessionRegistry_MatchesByRoot(t *testing.T) {
	registry := NewSessionRegistry()
	session := NewProcessSession("sh", nil, "", "")

	registry.Register("/proj", session)

	got, ok := registry.SessionFor(uri.File("/proj/src/Foo.hs"))
	require.True(t, ok)
	assert.Same(t, session, got)

	_, ok = registry.SessionFor(uri.File("/other/src/Foo.hs"))
	assert.False(t, ok)

	registry.Unregister("/proj")
	_, ok = registry.SessionFor(uri.File("/proj/src/Foo.hs"))
	assert.False(t, ok)
}
