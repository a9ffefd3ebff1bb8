package session

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-livycore/internal/livytest"
	"github.com/smnsjas/go-livycore/protocol"
)

func readySession(t *testing.T, srv *livytest.Server) *Session {
	t.Helper()
	s := newTestSession(t, srv)
	require.NoError(t, s.Create(context.Background()))
	require.NoError(t, s.WaitReady(context.Background()))
	return s
}

func TestSession_TimedOutStatementIsCancelled(t *testing.T) {
	srv := livytest.NewServer()
	defer srv.Close()
	srv.StatementPolls = 1 << 20
	srv.Eval = evalArithmetic
	s := readySession(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := s.RunCodes(ctx, "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateBusy, s.State(), "the statement was never seen finishing")
	assert.Equal(t, 1, srv.Cancels())

	srv.SetStatementPolls(0)
	out, err := s.RunCodes(context.Background(), "1+1")
	require.NoError(t, err)
	assert.Equal(t, "2", out.Text())
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, []string{"slow", "1+1"}, srv.Statements(1))
}

func TestSession_PendingStatementBlocksNextSubmit(t *testing.T) {
	srv := livytest.NewServer()
	defer srv.Close()
	srv.StatementPolls = 1 << 20
	srv.IgnoreCancel = true
	srv.Eval = evalArithmetic
	s := readySession(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := s.RunCodes(ctx, "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The first statement is still running remotely: nothing new may be submitted.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel2()
	_, err = s.RunCodes(ctx2, "second")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"slow"}, srv.Statements(1))
	assert.Equal(t, StateBusy, s.State())

	srv.SetStatementPolls(0)
	out, err := s.RunCodes(context.Background(), "1+1")
	require.NoError(t, err)
	assert.Equal(t, "2", out.Text())
	assert.Equal(t, []string{"slow", "1+1"}, srv.Statements(1))
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_PendingStatementGoneMeansDead(t *testing.T) {
	srv := livytest.NewServer()
	defer srv.Close()
	srv.StatementPolls = 1 << 20
	srv.IgnoreCancel = true
	s := readySession(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := s.RunCodes(ctx, "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	srv.RemoveSession(1)
	_, err = s.RunCodes(context.Background(), "1+1")
	assert.True(t, protocol.IsNotFound(err))
	assert.Equal(t, StateDead, s.State())
}

func TestSession_KillDuringCreateDeletesOrphan(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var deletes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			close(entered)
			<-release
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":9,"state":"starting"}`)
		case http.MethodDelete:
			deletes.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := New(protocol.NewClient(srv.URL), protocol.KindSpark, WithLogger(logger))

	done := make(chan error, 1)
	go func() { done <- s.Create(context.Background()) }()
	<-entered

	require.NoError(t, s.Kill(context.Background()))
	assert.Equal(t, StateKilled, s.State())
	close(release)

	err := <-done
	assert.ErrorIs(t, err, ErrTerminated)
	assert.Equal(t, int32(1), deletes.Load(), "the orphan is deleted before Create returns")
	assert.Contains(t, buf.String(), "delete of orphaned session failed")
	assert.Contains(t, buf.String(), `"session_id":9`)
}
