// Package errclass attributes errors to the party responsible for them: the remote
// service, the user's code or request, or this tool.
package errclass

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/smnsjas/go-livycore/clusterfs"
	"github.com/smnsjas/go-livycore/config"
	"github.com/smnsjas/go-livycore/fragments"
	"github.com/smnsjas/go-livycore/protocol"
	"github.com/smnsjas/go-livycore/session"
	"github.com/smnsjas/go-livycore/statement"
)

// Class is the party an error is attributed to.
type Class int

const (
	// Unclassified is returned for nil and unrecognized errors.
	Unclassified Class = iota
	// Service errors come from the session service or the cluster behind it.
	Service
	// User errors come from the submitted code or an invalid request.
	User
	// Tool errors come from this library.
	Tool
)

// String returns the string representation of the class.
func (c Class) String() string {
	switch c {
	case Unclassified:
		return "unclassified"
	case Service:
		return "service"
	case User:
		return "user"
	case Tool:
		return "tool"
	default:
		return "unknown"
	}
}

type rule struct {
	class Class
	match func(error) bool
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{Service, isServiceError},
	{User, isUserError},
	{Tool, isToolError},
}

// Classify returns the class of err. Wrapped errors are inspected through their
// whole chain.
func Classify(err error) Class {
	if err == nil {
		return Unclassified
	}
	for _, r := range rules {
		if r.match(err) {
			return r.class
		}
	}
	return Unclassified
}

func isServiceError(err error) bool {
	var rerr *protocol.RemoteRequestError
	if errors.As(err, &rerr) && rerr.StatusCode >= http.StatusInternalServerError {
		return true
	}
	var aerr *session.ApplicationError
	if errors.As(err, &aerr) {
		return true
	}
	return errors.Is(err, session.ErrTerminated)
}

func isUserError(err error) bool {
	var rerr *protocol.RemoteRequestError
	if errors.As(err, &rerr) && rerr.StatusCode >= http.StatusBadRequest {
		return true
	}
	var ferr *statement.FailureError
	if errors.As(err, &ferr) {
		return true
	}
	var serr *session.StateError
	if errors.As(err, &serr) {
		return true
	}
	return errors.Is(err, config.ErrUnknownCluster) || errors.Is(err, clusterfs.ErrUnsupportedKind)
}

func isToolError(err error) bool {
	if errors.Is(err, clusterfs.ErrStreamClosed) ||
		errors.Is(err, fragments.ErrInvalidFragment) ||
		errors.Is(err, fragments.ErrOutOfOrder) ||
		errors.Is(err, fragments.ErrDuplicateFragment) {
		return true
	}
	var cerr *session.CreationError
	if errors.As(err, &cerr) {
		return true
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
