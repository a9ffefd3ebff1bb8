package errclass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smnsjas/go-livycore/clusterfs"
	"github.com/smnsjas/go-livycore/config"
	"github.com/smnsjas/go-livycore/fragments"
	"github.com/smnsjas/go-livycore/protocol"
	"github.com/smnsjas/go-livycore/session"
	"github.com/smnsjas/go-livycore/statement"
)

func TestClassify(t *testing.T) {
	remote := func(code int) error {
		return &protocol.RemoteRequestError{Method: "POST", URL: "http://h/sessions", StatusCode: code}
	}
	var syntaxErr error = &json.SyntaxError{}

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, Unclassified},
		{"plain", errors.New("boom"), Unclassified},
		{"context", context.Canceled, Unclassified},
		{"remote 500", remote(500), Service},
		{"remote 503 wrapped", fmt.Errorf("poll: %w", remote(503)), Service},
		{"application", &session.ApplicationError{SessionID: 1, State: session.StateDead}, Service},
		{"terminated", &session.StateError{Op: "run", SessionID: 1, State: session.StateDead, Err: session.ErrTerminated}, Service},
		{"remote 400", remote(400), User},
		{"remote 404", remote(404), User},
		{"statement failure", &statement.FailureError{Output: &statement.Output{Status: "error"}}, User},
		{"busy", &session.StateError{Op: "run", SessionID: 1, State: session.StateBusy, Err: session.ErrBusy}, User},
		{"unknown cluster", fmt.Errorf("%w: %q", config.ErrUnknownCluster, "x"), User},
		{"unsupported kind", fmt.Errorf("%w: sql", clusterfs.ErrUnsupportedKind), User},
		{"creation rejected", &session.CreationError{Err: remote(400)}, User},
		{"creation server error", &session.CreationError{Err: remote(502)}, Service},
		{"creation decode", &session.CreationError{Err: fmt.Errorf("decode response: %w", syntaxErr)}, Tool},
		{"stream closed", &clusterfs.StreamClosedError{Path: "/x"}, Tool},
		{"fragment", fmt.Errorf("%w: bad", fragments.ErrOutOfOrder), Tool},
		{"decode", fmt.Errorf("decode response: %w", syntaxErr), Tool},
		{"failed write chunk", fmt.Errorf("write page 2 of /x: %w",
			&statement.FailureError{Output: &statement.Output{Status: "error"}}), User},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClass_String(t *testing.T) {
	assert.Equal(t, "service", Service.String())
	assert.Equal(t, "user", User.String())
	assert.Equal(t, "tool", Tool.String())
	assert.Equal(t, "unclassified", Unclassified.String())
	assert.Equal(t, "unknown", Class(42).String())
}
