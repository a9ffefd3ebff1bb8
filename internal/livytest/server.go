// Package livytest provides an in-process fake of the interactive session service for
// tests. It implements the session and statement endpoints over httptest and records
// every request it receives.
package livytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/smnsjas/go-livycore/protocol"
)

// Request is one request received by the Server. ID is also sent back in the
// X-Request-Id response header.
type Request struct {
	ID     string
	Method string
	Path   string
	Body   string
}

// EvalFunc produces the output of a statement. Returning a nil output marks the
// statement as failed with an "error" status.
type EvalFunc func(sessionID int, code string) *protocol.StatementOutput

// Server is a fake session service.
//
// Exported fields configure behaviour and must be set before requests are made.
type Server struct {
	*httptest.Server

	// StartPolls is the number of status polls that report "starting" before "idle".
	StartPolls int
	// AppIDPolls is the number of status polls before an appId is reported.
	// Negative means never.
	AppIDPolls int
	// StatementPolls is the number of statement polls that report "running".
	StatementPolls int
	// FailStart makes a starting session go "dead" instead of "idle".
	FailStart bool
	// CreateStatus, if set, is returned by POST /sessions.
	CreateStatus int
	// DeleteStatus, if set, is returned by DELETE /sessions/{id}.
	DeleteStatus int
	// IgnoreCancel makes cancel requests succeed without stopping the statement.
	IgnoreCancel bool
	// StartLog is reported as the session log.
	StartLog []string
	// Eval produces statement outputs. The default echoes nothing with status ok.
	Eval EvalFunc

	mu       sync.Mutex
	nextID   int
	sessions map[int]*fakeSession
	requests []Request
}

type fakeSession struct {
	id         int
	kind       protocol.Kind
	name       string
	state      protocol.SessionState
	polls      int
	appID      string
	statements []*fakeStatement
}

type fakeStatement struct {
	id     int
	code   string
	polls  int
	state  protocol.StatementState
	output *protocol.StatementOutput
}

// NewServer starts a fake service. The first session it creates gets id 1.
func NewServer() *Server {
	s := &Server{
		nextID:   1,
		sessions: make(map[int]*fakeSession),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Requests returns a copy of the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Statements returns the code of every statement submitted to a session, in order.
func (s *Server) Statements(sessionID int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	codes := make([]string, len(fs.statements))
	for i, st := range fs.statements {
		codes[i] = st.code
	}
	return codes
}

// SetStatementPolls changes StatementPolls while requests may be in flight.
func (s *Server) SetStatementPolls(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StatementPolls = n
}

// Cancels returns the number of statement cancel requests received.
func (s *Server) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == http.MethodPost && strings.HasSuffix(r.Path, "/cancel") {
			n++
		}
	}
	return n
}

// SetSessionState forces the remote state of a session.
func (s *Server) SetSessionState(sessionID int, state protocol.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fs, ok := s.sessions[sessionID]; ok {
		fs.state = state
	}
}

// RemoveSession forgets a session so later requests for it get 404.
func (s *Server) RemoveSession(sessionID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	var body strings.Builder
	if r.Body != nil {
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err == nil {
			body.Write(raw)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reqID := uuid.NewString()
	w.Header().Set("X-Request-Id", reqID)
	s.requests = append(s.requests, Request{
		ID:     reqID,
		Method: r.Method,
		Path:   r.URL.Path,
		Body:   body.String(),
	})

	if r.Header.Get("X-Requested-By") == "" {
		writeError(w, http.StatusBadRequest, "missing X-Requested-By header")
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 0 || parts[0] != "sessions" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.createSession(w, body.String())
		return
	}

	id, err := strconv.Atoi(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad session id")
		return
	}
	fs, ok := s.sessions[id]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("session %d not found", id))
		return
	}

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		s.pollSession(fs)
		writeJSON(w, http.StatusOK, s.sessionBody(fs))
	case len(parts) == 2 && r.Method == http.MethodDelete:
		if s.DeleteStatus != 0 {
			writeError(w, s.DeleteStatus, "delete failed")
			return
		}
		delete(s.sessions, id)
		writeJSON(w, http.StatusOK, map[string]string{"msg": "deleted"})
	case len(parts) == 3 && parts[2] == "log" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, protocol.SessionLog{ID: id, Total: len(s.StartLog), Log: s.StartLog})
	case len(parts) == 3 && parts[2] == "statements" && r.Method == http.MethodPost:
		s.submitStatement(w, fs, body.String())
	case len(parts) >= 4 && parts[2] == "statements":
		sid, err := strconv.Atoi(parts[3])
		if err != nil || sid < 0 || sid >= len(fs.statements) {
			writeError(w, http.StatusNotFound, "statement not found")
			return
		}
		st := fs.statements[sid]
		if len(parts) == 5 && parts[4] == "cancel" && r.Method == http.MethodPost {
			if !s.IgnoreCancel && !st.state.Done() {
				st.state = protocol.StatementStateCancelled
			}
			writeJSON(w, http.StatusOK, map[string]string{"msg": "canceled"})
			return
		}
		s.pollStatement(fs, st)
		writeJSON(w, http.StatusOK, statementBody(st))
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) createSession(w http.ResponseWriter, body string) {
	if s.CreateStatus != 0 {
		writeError(w, s.CreateStatus, "create failed")
		return
	}
	var req protocol.CreateSessionRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fs := &fakeSession{
		id:    s.nextID,
		kind:  req.Kind,
		name:  req.Name,
		state: protocol.SessionStateStarting,
	}
	s.nextID++
	s.sessions[fs.id] = fs
	writeJSON(w, http.StatusCreated, s.sessionBody(fs))
}

func (s *Server) pollSession(fs *fakeSession) {
	fs.polls++
	if fs.state == protocol.SessionStateStarting && fs.polls > s.StartPolls {
		if s.FailStart {
			fs.state = protocol.SessionStateDead
		} else {
			fs.state = protocol.SessionStateIdle
		}
	}
	if fs.appID == "" && s.AppIDPolls >= 0 && fs.polls > s.AppIDPolls && !s.FailStart {
		fs.appID = fmt.Sprintf("application_1700000000000_%04d", fs.id)
	}
}

func (s *Server) submitStatement(w http.ResponseWriter, fs *fakeSession, body string) {
	if fs.state != protocol.SessionStateIdle && fs.state != protocol.SessionStateBusy {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("session is %s", fs.state))
		return
	}
	var req protocol.StatementRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st := &fakeStatement{
		id:    len(fs.statements),
		code:  req.Code,
		state: protocol.StatementStateWaiting,
	}
	fs.statements = append(fs.statements, st)
	writeJSON(w, http.StatusCreated, statementBody(st))
}

func (s *Server) pollStatement(fs *fakeSession, st *fakeStatement) {
	if st.state.Done() {
		return
	}
	st.polls++
	if st.polls <= s.StatementPolls {
		st.state = protocol.StatementStateRunning
		return
	}

	var out *protocol.StatementOutput
	if s.Eval != nil {
		out = s.Eval(fs.id, st.code)
	} else {
		out = &protocol.StatementOutput{Status: "ok", Data: protocol.OutputData{"text/plain": ""}}
	}
	if out == nil {
		out = &protocol.StatementOutput{Status: "error", EName: "Error", EValue: "evaluation failed"}
	}
	out.ExecutionCount = st.id
	st.output = out
	st.state = protocol.StatementStateAvailable
}

func (s *Server) sessionBody(fs *fakeSession) protocol.Session {
	return protocol.Session{
		ID:    fs.id,
		Name:  fs.name,
		Kind:  fs.kind,
		State: fs.state,
		AppID: fs.appID,
		Log:   s.StartLog,
	}
}

func statementBody(st *fakeStatement) protocol.Statement {
	return protocol.Statement{
		ID:     st.id,
		Code:   st.code,
		State:  st.state,
		Output: st.output,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"msg": msg})
}
