package statement

import (
	"fmt"
	"strings"

	"github.com/smnsjas/go-livycore/protocol"
)

// MIMETextPlain is the MIME type of the plain-text rendering of a result.
const MIMETextPlain = "text/plain"

// Output is the result of one executed statement.
// It is never modified after it is returned.
type Output struct {
	SessionID      int
	StatementID    int
	Status         string
	ExecutionCount int
	Data           map[string]string
	EName          string
	EValue         string
	Traceback      []string
}

// OK reports whether the remote status is "ok", compared case-insensitively.
func (o *Output) OK() bool {
	return strings.EqualFold(o.Status, "ok")
}

// Text returns the text/plain rendering, or "" if there is none.
func (o *Output) Text() string {
	return o.Data[MIMETextPlain]
}

// NewOutput converts a completed protocol statement into an Output.
// A statement cancelled before producing output gets the status "cancelled".
func NewOutput(sessionID int, st *protocol.Statement) *Output {
	out := &Output{
		SessionID:   sessionID,
		StatementID: st.ID,
		Data:        map[string]string{},
	}
	if st.Output == nil {
		if st.State == protocol.StatementStateCancelled {
			out.Status = string(protocol.StatementStateCancelled)
		} else {
			out.Status = string(st.State)
		}
		return out
	}
	out.Status = st.Output.Status
	out.ExecutionCount = st.Output.ExecutionCount
	for k, v := range st.Output.Data {
		out.Data[k] = v
	}
	out.EName = st.Output.EName
	out.EValue = st.Output.EValue
	out.Traceback = append([]string(nil), st.Output.Traceback...)
	return out
}

// FailureError is returned when a statement ran but its status is not ok.
// The session stays usable; retrying is up to the caller.
type FailureError struct {
	Output *Output
}

func (e *FailureError) Error() string {
	o := e.Output
	msg := fmt.Sprintf("statement %d in session %d failed with status %q", o.StatementID, o.SessionID, o.Status)
	switch {
	case o.EName != "" && o.EValue != "":
		msg += ": " + o.EName + ": " + o.EValue
	case o.EName != "":
		msg += ": " + o.EName
	case o.EValue != "":
		msg += ": " + o.EValue
	}
	return msg
}
