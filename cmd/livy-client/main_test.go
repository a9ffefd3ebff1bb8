package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-livycore/internal/livytest"
	"github.com/smnsjas/go-livycore/protocol"
	"github.com/smnsjas/go-livycore/statement"
)

func newServer(t *testing.T) *livytest.Server {
	t.Helper()
	srv := livytest.NewServer()
	t.Cleanup(srv.Close)
	srv.Eval = func(_ int, code string) *protocol.StatementOutput {
		if code == "1+1" {
			return &protocol.StatementOutput{Status: "ok", Data: protocol.OutputData{"text/plain": "2"}}
		}
		return &protocol.StatementOutput{Status: "ok", Data: protocol.OutputData{"text/plain": ""}}
	}
	return srv
}

func countMethod(srv *livytest.Server, method string) int {
	var n int
	for _, r := range srv.Requests() {
		if r.Method == method {
			n++
		}
	}
	return n
}

func TestRun_Code(t *testing.T) {
	srv := newServer(t)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"-url", srv.URL, "-code", "1+1"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "2\n", stdout.String())
	assert.Equal(t, 1, countMethod(srv, http.MethodDelete))
}

func TestRun_Keep(t *testing.T) {
	srv := newServer(t)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"-url", srv.URL, "-code", "1+1", "-keep"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Zero(t, countMethod(srv, http.MethodDelete))
	assert.Contains(t, stderr.String(), "leaving session running")
}

func TestRun_UploadWithConfig(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()

	local := filepath.Join(dir, "payload.bin")
	require.NoError(t, os.WriteFile(local, bytes.Repeat([]byte("z"), 100), 0o600))

	cfg := filepath.Join(dir, "livy.hcl")
	require.NoError(t, os.WriteFile(cfg, []byte(`
cluster "local" {
  url           = "`+srv.URL+`"
  poll_interval = "1ms"
  page_size     = 32
}
log {
  level  = "debug"
  format = "json"
}
`), 0o600))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(),
		[]string{"-config", cfg, "-upload", local, "-dest", "/tmp/payload.bin"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Len(t, srv.Statements(1), 4)
	assert.Contains(t, stderr.String(), `"msg":"upload complete"`)
}

func TestRun_StatementFailure(t *testing.T) {
	srv := newServer(t)
	srv.Eval = func(int, string) *protocol.StatementOutput { return nil }

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-url", srv.URL, "-code", "boom"}, &stdout, &stderr)
	var ferr *statement.FailureError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, exitUser, exitCode(err))
	assert.Equal(t, 1, countMethod(srv, http.MethodDelete), "session is killed after a failed statement")
}

func TestRun_StartFailure(t *testing.T) {
	srv := newServer(t)
	srv.FailStart = true

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-url", srv.URL, "-code", "1+1"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Equal(t, exitService, exitCode(err))
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no target", []string{"-code", "1"}, "-config or -url"},
		{"upload without dest", []string{"-url", "http://h", "-upload", "f"}, "-upload requires -dest"},
		{"nothing to do", []string{"-url", "http://h"}, "nothing to do"},
		{"unknown flag", []string{"-bogus"}, "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, &bytes.Buffer{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	o, err := parseFlags([]string{"-url", "http://h", "-code", "1", "-kind", "pyspark", "-keep"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "pyspark", o.kind)
	assert.True(t, o.keep)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFailure, exitCode(errors.New("other")))
	assert.Equal(t, exitService, exitCode(&protocol.RemoteRequestError{StatusCode: 502}))
}
