package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind is the execution language family of a session or statement.
type Kind string

const (
	KindSpark   Kind = "spark"
	KindPySpark Kind = "pyspark"
	KindSparkR  Kind = "sparkr"
	KindSQL     Kind = "sql"
)

// SessionState is a session state as reported by the service.
type SessionState string

const (
	SessionStateNotStarted   SessionState = "not_started"
	SessionStateStarting     SessionState = "starting"
	SessionStateIdle         SessionState = "idle"
	SessionStateBusy         SessionState = "busy"
	SessionStateShuttingDown SessionState = "shutting_down"
	SessionStateError        SessionState = "error"
	SessionStateDead         SessionState = "dead"
	SessionStateKilled       SessionState = "killed"
	SessionStateSuccess      SessionState = "success"
)

// StatementState is a statement state as reported by the service.
type StatementState string

const (
	StatementStateWaiting    StatementState = "waiting"
	StatementStateRunning    StatementState = "running"
	StatementStateAvailable  StatementState = "available"
	StatementStateError      StatementState = "error"
	StatementStateCancelling StatementState = "cancelling"
	StatementStateCancelled  StatementState = "cancelled"
)

// Done reports whether the statement has reached a final state.
func (s StatementState) Done() bool {
	switch s {
	case StatementStateAvailable, StatementStateError, StatementStateCancelled:
		return true
	default:
		return false
	}
}

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	Kind      Kind              `json:"kind"`
	Name      string            `json:"name,omitempty"`
	ProxyUser string            `json:"proxyUser,omitempty"`
	Conf      map[string]string `json:"conf,omitempty"`
}

// AppInfo holds URLs the service reports once an application is attached.
type AppInfo struct {
	DriverLogURL string `json:"driverLogUrl,omitempty"`
	SparkUIURL   string `json:"sparkUiUrl,omitempty"`
}

// Session is the body of a session create or status response.
type Session struct {
	ID        int          `json:"id"`
	Name      string       `json:"name,omitempty"`
	AppID     string       `json:"appId,omitempty"`
	Owner     string       `json:"owner,omitempty"`
	ProxyUser string       `json:"proxyUser,omitempty"`
	State     SessionState `json:"state"`
	Kind      Kind         `json:"kind,omitempty"`
	AppInfo   AppInfo      `json:"appInfo"`
	Log       []string     `json:"log,omitempty"`
}

// SessionLog is the body of GET /sessions/{id}/log.
type SessionLog struct {
	ID    int      `json:"id"`
	From  int      `json:"from"`
	Total int      `json:"total"`
	Log   []string `json:"log"`
}

// StatementRequest is the body of POST /sessions/{id}/statements.
type StatementRequest struct {
	Code string `json:"code"`
	Kind Kind   `json:"kind,omitempty"`
}

// Statement is the body of a statement submit or status response.
type Statement struct {
	ID       int              `json:"id"`
	Code     string           `json:"code,omitempty"`
	State    StatementState   `json:"state"`
	Progress float64          `json:"progress,omitempty"`
	Output   *StatementOutput `json:"output,omitempty"`
}

// StatementOutput is the output payload of a completed statement.
type StatementOutput struct {
	Status         string     `json:"status"`
	ExecutionCount int        `json:"execution_count"`
	Data           OutputData `json:"data,omitempty"`
	EName          string     `json:"ename,omitempty"`
	EValue         string     `json:"evalue,omitempty"`
	Traceback      []string   `json:"traceback,omitempty"`
}

// OutputData maps a MIME type to its rendered content.
//
// The service renders most types as JSON strings, but some (application/json) arrive as
// structured values. Those are kept as their compact JSON text.
type OutputData map[string]string

// UnmarshalJSON implements json.Unmarshaler.
func (d *OutputData) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode output data: %w", err)
	}
	if raw == nil {
		*d = nil
		return nil
	}
	out := make(OutputData, len(raw))
	for mime, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[mime] = s
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return fmt.Errorf("decode output data %s: %w", mime, err)
		}
		out[mime] = buf.String()
	}
	*d = out
	return nil
}

type deleteResponse struct {
	Msg string `json:"msg"`
}
