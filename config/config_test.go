package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
cluster "prod" {
  url           = "https://livy.example.com:8998"
  username      = "etl"
  password      = "secret"
  kind          = "pyspark"
  proxy_user    = "analyst"
  poll_interval = "500ms"
  app_id_timeout = "2m"
  page_size     = 65536
  conf = {
    "spark.executor.memory" = "4g"
  }
}

cluster "dev" {
  url = "http://localhost:8998"
}

log {
  level  = "debug"
  format = "json"
}
`

func TestParse(t *testing.T) {
	reg, err := Parse([]byte(sample), "livy.hcl")
	require.NoError(t, err)

	assert.Equal(t, []string{"dev", "prod"}, reg.Names())

	prod, err := reg.Lookup("prod")
	require.NoError(t, err)
	assert.Equal(t, "https://livy.example.com:8998", prod.URL)
	assert.Equal(t, "etl", prod.Username)
	assert.Equal(t, "pyspark", prod.Kind)
	assert.Equal(t, "analyst", prod.ProxyUser)
	assert.Equal(t, 65536, prod.PageSize)
	assert.Equal(t, 500*time.Millisecond, prod.Poll())
	assert.Equal(t, 2*time.Minute, prod.AppIDWait())
	if diff := cmp.Diff(map[string]string{"spark.executor.memory": "4g"}, prod.Conf); diff != "" {
		t.Errorf("conf mismatch (-want +got):\n%s", diff)
	}

	dev, err := reg.Lookup("dev")
	require.NoError(t, err)
	assert.Zero(t, dev.Poll())
	assert.Zero(t, dev.PageSize)
	assert.Empty(t, dev.Kind)

	require.NotNil(t, reg.Log())
	assert.Equal(t, "debug", reg.Log().Level)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livy.hcl")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, reg.Names(), 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	single, err := Parse([]byte(`cluster "only" { url = "http://h:8998" }`), "one.hcl")
	require.NoError(t, err)
	c, err := single.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, "only", c.Name)

	multi, err := Parse([]byte(sample), "livy.hcl")
	require.NoError(t, err)
	_, err = multi.Lookup("")
	assert.ErrorIs(t, err, ErrUnknownCluster)
	_, err = multi.Lookup("staging")
	assert.ErrorIs(t, err, ErrUnknownCluster)

	empty, err := Parse([]byte(``), "empty.hcl")
	require.NoError(t, err)
	_, err = empty.Lookup("")
	assert.ErrorIs(t, err, ErrUnknownCluster)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"syntax", `cluster "a" {`, "failed to parse"},
		{"missing url", `cluster "a" {}`, "failed to decode"},
		{"unknown attribute", `cluster "a" {
  url   = "http://h"
  color = "red"
}`, "failed to decode"},
		{"bad scheme", `cluster "a" { url = "ftp://h" }`, "scheme"},
		{"bad duration", `cluster "a" {
  url = "http://h"
  poll_interval = "soon"
}`, "poll_interval"},
		{"negative duration", `cluster "a" {
  url = "http://h"
  app_id_timeout = "-1s"
}`, "app_id_timeout"},
		{"negative page", `cluster "a" {
  url = "http://h"
  page_size = -1
}`, "page_size"},
		{"duplicate", `cluster "a" { url = "http://h" }
cluster "a" { url = "http://g" }`, "more than once"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLog_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := (&Log{Level: "debug", Format: "json"}).NewLogger(&buf)
	logger.Debug("hello", "session_id", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, float64(3), entry["session_id"])

	buf.Reset()
	var nilLog *Log
	logger = nilLog.NewLogger(&buf)
	logger.Debug("hidden")
	logger.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}
