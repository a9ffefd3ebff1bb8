// Package session implements the interactive session state machine.
//
// A Session tracks one remote session from creation to termination and is the only
// place where remote status is interpreted.
//
// # State Machine
//
//	NotStarted → Starting → Idle ⇄ Busy
//	                ↓         ↓     ↓
//	                └──→ Error / Dead / Killed ←──┘
//
// State transitions:
//   - NotStarted: initial state, nothing exists remotely
//   - Starting: created, waiting for the service to report the session ready
//   - Idle: ready for a statement
//   - Busy: a statement is in flight
//   - Error, Dead: the service reported a terminal failure
//   - Killed: Kill was called
//
// Error, Dead and Killed absorb: no further transitions happen, except that Kill
// always ends in Killed.
//
// # Polling
//
// Readiness, statement completion and application id are observed by polling with a
// fixed interval. There is no built-in timeout; use a context deadline. A cancelled
// poll returns ctx.Err() and leaves the state as last observed; it never kills.
//
// # Usage
//
//	c := protocol.NewClient("http://livy:8998")
//	s := session.New(c, protocol.KindSpark)
//	if err := s.Create(ctx); err != nil {
//	    return err
//	}
//	defer s.Kill(context.Background())
//
//	out, err := s.Executor().Run(ctx, "1+1")
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smnsjas/go-livycore/protocol"
	"github.com/smnsjas/go-livycore/statement"
)

// State represents the client-side state of a Session.
type State int

const (
	// StateNotStarted is the initial state before the session is created.
	StateNotStarted State = iota
	// StateStarting indicates the session was created and is not ready yet.
	StateStarting
	// StateIdle indicates the session is ready for a statement.
	StateIdle
	// StateBusy indicates a statement is running.
	StateBusy
	// StateFailed indicates the service reported the session failed (remote "error").
	StateFailed
	// StateDead indicates the session is gone on the remote side.
	StateDead
	// StateKilled indicates the session was killed by the client.
	StateKilled
)

// DefaultPollInterval is the delay between two status requests.
const DefaultPollInterval = time.Second

// cancelTimeout bounds the cleanup requests sent on behalf of a caller that gave up.
const cancelTimeout = 5 * time.Second

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateStarting:
		return "Starting"
	case StateIdle:
		return "Idle"
	case StateBusy:
		return "Busy"
	case StateFailed:
		return "Error"
	case StateDead:
		return "Dead"
	case StateKilled:
		return "Killed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Terminal reports whether s is Error, Dead or Killed.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateDead || s == StateKilled
}

// Session is a handle on one remote interactive session. It is owned by one caller;
// statements must go through Executor.
type Session struct {
	mu sync.RWMutex

	client *protocol.Client
	kind   protocol.Kind

	// Creation parameters
	name      string
	proxyUser string
	conf      map[string]string

	// Remote identity and status
	id        int
	hasID     bool
	creating  bool
	state     State
	appID     string
	appInfo   protocol.AppInfo
	remoteLog []string

	// Statement whose completion was not observed; the session stays Busy until a
	// later call sees it done.
	pendingStmt int
	hasPending  bool
	settling    bool

	pollInterval time.Duration
	appIDTimeout time.Duration
	logger       *slog.Logger

	executor *statement.Executor
}

// Option configures a Session.
type Option func(*Session)

// WithPollInterval sets the delay between status requests.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithAppIDTimeout bounds how long AppID waits. Zero, the default, waits until the
// context passed to AppID is done.
func WithAppIDTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.appIDTimeout = d
	}
}

// WithLogger sets the logger for debug logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithName sets the session name. Names must be unique on the service; the default
// is generated.
func WithName(name string) Option {
	return func(s *Session) {
		s.name = name
	}
}

// WithProxyUser runs the session as another user.
func WithProxyUser(user string) Option {
	return func(s *Session) {
		s.proxyUser = user
	}
}

// WithConf sets engine configuration passed at creation.
func WithConf(conf map[string]string) Option {
	return func(s *Session) {
		s.conf = conf
	}
}

// New creates a Session in StateNotStarted. Nothing is sent until Create.
func New(client *protocol.Client, kind protocol.Kind, opts ...Option) *Session {
	s := &Session{
		client:       client,
		kind:         kind,
		name:         "livy-go-" + uuid.NewString(),
		state:        StateNotStarted,
		pollInterval: DefaultPollInterval,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session_kind", string(kind), "session_name", s.name)
	s.executor = statement.NewExecutor(s, s.logger)
	return s
}

// ID returns the server-assigned id, and false until creation completed.
func (s *Session) ID() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.hasID
}

// Kind returns the execution kind fixed at construction.
func (s *Session) Kind() protocol.Kind {
	return s.kind
}

// Name returns the session name sent at creation.
func (s *Session) Name() string {
	return s.name
}

// BaseURI returns the service endpoint.
func (s *Session) BaseURI() string {
	return s.client.BaseURL()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CachedAppID returns the last application id observed, without polling.
func (s *Session) CachedAppID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appID
}

// AppInfo returns the application URLs last reported by the service.
func (s *Session) AppInfo() protocol.AppInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appInfo
}

// Executor returns the statement executor serializing RunCodes on this session.
func (s *Session) Executor() *statement.Executor {
	return s.executor
}

// Create sends the create request and transitions NotStarted → Starting.
// On failure it returns a *CreationError and the session stays NotStarted.
func (s *Session) Create(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateNotStarted || s.creating {
		defer s.mu.Unlock()
		return s.stateErrorLocked("create", ErrInvalidState)
	}
	s.creating = true
	req := protocol.CreateSessionRequest{
		Kind:      s.kind,
		Name:      s.name,
		ProxyUser: s.proxyUser,
		Conf:      s.conf,
	}
	s.mu.Unlock()

	remote, err := s.client.CreateSession(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creating = false
	if err != nil {
		s.logger.Debug("create failed", "error", err)
		return &CreationError{Err: err}
	}
	if s.state != StateNotStarted {
		// Killed while the create request was in flight; do not leak the remote session.
		serr := s.stateErrorLocked("create", ErrTerminated)
		s.mu.Unlock()
		s.deleteOrphan(ctx, remote.ID)
		s.mu.Lock()
		return serr
	}

	s.id = remote.ID
	s.hasID = true
	s.setState(StateStarting)
	s.observeLocked(remote)
	return nil
}

// deleteOrphan deletes a session created after Kill already ran.
func (s *Session) deleteOrphan(ctx context.Context, id int) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := s.client.DeleteSession(dctx, id); err != nil {
		s.logger.Warn("delete of orphaned session failed", "session_id", id, "error", err)
		return
	}
	s.logger.Debug("orphaned session deleted", "session_id", id)
}

// WaitReady polls until the session is ready for statements.
// It returns nil in Idle or Busy, and a *StateError if the session never got created
// or terminated.
func (s *Session) WaitReady(ctx context.Context) error {
	for {
		s.mu.RLock()
		state := s.state
		id := s.id
		s.mu.RUnlock()

		switch state {
		case StateIdle, StateBusy:
			return nil
		case StateNotStarted:
			return s.stateError("wait ready", ErrNotCreated)
		case StateStarting:
		default:
			return s.stateError("wait ready", ErrTerminated)
		}

		if err := s.poll(ctx, id); err != nil {
			return err
		}
		if s.State() != StateStarting {
			continue
		}
		if err := s.sleep(ctx); err != nil {
			return err
		}
	}
}

// RunCodes runs one statement and waits for its output. It waits for readiness
// first and rejects the call if another statement is in flight; use Executor to
// serialize callers.
//
// A statement that completes with a non-ok status returns a *statement.FailureError
// and leaves the session Idle.
//
// If ctx ends (or polling fails) before the statement completes, a cancel request is
// sent and the session stays Busy with the statement pending. The next RunCodes
// polls the pending statement to completion before submitting anything.
func (s *Session) RunCodes(ctx context.Context, code string) (*statement.Output, error) {
	if err := s.WaitReady(ctx); err != nil {
		return nil, err
	}
	if err := s.settlePending(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	switch {
	case s.state == StateBusy:
		defer s.mu.Unlock()
		return nil, s.stateErrorLocked("run", ErrBusy)
	case s.state != StateIdle:
		defer s.mu.Unlock()
		return nil, s.stateErrorLocked("run", ErrTerminated)
	}
	s.setState(StateBusy)
	id := s.id
	s.mu.Unlock()

	st, err := s.client.SubmitStatement(ctx, id, protocol.StatementRequest{Code: code})
	if err != nil {
		s.finishStatement(err)
		return nil, err
	}
	s.debug("statement submitted", "statement_id", st.ID)

	if !st.State.Done() {
		stID := st.ID
		st, err = s.waitStatement(ctx, id, stID)
		if err != nil {
			if protocol.IsNotFound(err) {
				s.finishStatement(err)
			} else {
				s.abandonStatement(ctx, id, stID)
			}
			return nil, err
		}
	}
	s.finishStatement(nil)

	out := statement.NewOutput(id, st)
	s.debug("statement completed", "statement_id", st.ID, "status", out.Status)
	if !out.OK() {
		return nil, &statement.FailureError{Output: out}
	}
	return out, nil
}

// waitStatement polls a statement until it is done.
func (s *Session) waitStatement(ctx context.Context, id, stID int) (*protocol.Statement, error) {
	for {
		if err := s.sleep(ctx); err != nil {
			return nil, err
		}
		st, err := s.client.GetStatement(ctx, id, stID)
		if err != nil {
			return nil, err
		}
		if st.State.Done() {
			return st, nil
		}
	}
}

// abandonStatement records a statement still running remotely and asks the service
// to cancel it. The session stays Busy.
func (s *Session) abandonStatement(ctx context.Context, id, stID int) {
	s.mu.Lock()
	s.pendingStmt = stID
	s.hasPending = true
	s.mu.Unlock()

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := s.client.CancelStatement(cctx, id, stID); err != nil {
		s.debug("statement cancel failed", "statement_id", stID, "error", err)
		return
	}
	s.debug("statement cancel requested", "statement_id", stID)
}

// settlePending waits for an abandoned statement to finish and returns the session
// to Idle. On failure the statement stays pending, except when the session is gone.
func (s *Session) settlePending(ctx context.Context) error {
	s.mu.Lock()
	if !s.hasPending || s.settling || s.state != StateBusy {
		s.mu.Unlock()
		return nil
	}
	s.settling = true
	id, stID := s.id, s.pendingStmt
	s.mu.Unlock()

	st, err := s.client.GetStatement(ctx, id, stID)
	if err == nil && !st.State.Done() {
		st, err = s.waitStatement(ctx, id, stID)
	}

	s.mu.Lock()
	s.settling = false
	s.mu.Unlock()

	if err != nil {
		if protocol.IsNotFound(err) {
			s.finishStatement(err)
		}
		return err
	}
	s.debug("pending statement settled", "statement_id", stID, "state", string(st.State))
	s.finishStatement(nil)
	return nil
}

// finishStatement leaves Busy. A 404 means the session is gone.
func (s *Session) finishStatement(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasPending = false
	if s.state != StateBusy {
		return
	}
	if err != nil && protocol.IsNotFound(err) {
		s.setState(StateDead)
		return
	}
	s.setState(StateIdle)
}

// Kill deletes the remote session and always ends in Killed. Errors reported by the
// service (including "not found") are logged and suppressed; only a failure to reach
// the service at all is returned.
func (s *Session) Kill(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateKilled {
		s.mu.Unlock()
		return nil
	}
	id, hasID := s.id, s.hasID
	s.mu.Unlock()

	var err error
	if hasID {
		err = s.client.DeleteSession(ctx, id)
	}

	s.mu.Lock()
	s.setState(StateKilled)
	s.mu.Unlock()

	if err == nil {
		return nil
	}
	var rerr *protocol.RemoteRequestError
	if errors.As(err, &rerr) {
		s.debug("delete rejected by service", "status", rerr.StatusCode, "error", err)
		return nil
	}
	return fmt.Errorf("kill session %d: %w", id, err)
}

// AppID blocks until the service reports an application id. If the session
// terminates first, it returns an *ApplicationError with the remote diagnostics.
func (s *Session) AppID(ctx context.Context) (string, error) {
	if s.appIDTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.appIDTimeout)
		defer cancel()
	}

	for {
		s.mu.RLock()
		appID, state, id, hasID := s.appID, s.state, s.id, s.hasID
		s.mu.RUnlock()

		if appID != "" {
			return appID, nil
		}
		if !hasID {
			return "", s.stateError("app id", ErrNotCreated)
		}
		if state.Terminal() {
			return "", s.applicationError(ctx, id, state)
		}

		if err := s.poll(ctx, id); err != nil {
			return "", err
		}
		if s.CachedAppID() != "" || s.State().Terminal() {
			continue
		}
		if err := s.sleep(ctx); err != nil {
			return "", err
		}
	}
}

// Log fetches session log lines from the service.
func (s *Session) Log(ctx context.Context, from, size int) ([]string, error) {
	id, ok := s.ID()
	if !ok {
		return nil, s.stateError("log", ErrNotCreated)
	}
	l, err := s.client.GetSessionLog(ctx, id, from, size)
	if err != nil {
		return nil, err
	}
	return l.Log, nil
}

func (s *Session) applicationError(ctx context.Context, id int, state State) error {
	s.mu.RLock()
	lines := append([]string(nil), s.remoteLog...)
	s.mu.RUnlock()

	if len(lines) == 0 && state != StateKilled {
		if l, err := s.client.GetSessionLog(ctx, id, 0, -1); err == nil {
			lines = l.Log
		}
	}
	return &ApplicationError{SessionID: id, State: state, Log: lines}
}

// poll fetches the remote status once and applies it.
func (s *Session) poll(ctx context.Context, id int) error {
	remote, err := s.client.GetSession(ctx, id)
	if err != nil {
		if protocol.IsNotFound(err) {
			s.mu.Lock()
			if !s.state.Terminal() {
				s.setState(StateDead)
			}
			s.mu.Unlock()
			s.debug("session not found on poll")
		}
		return err
	}

	s.mu.Lock()
	s.observeLocked(remote)
	s.mu.Unlock()
	return nil
}

// observeLocked applies a remote status (caller must hold lock).
//
// Idle and Busy are driven locally once the session is ready; a remote status only
// moves a ready session into a terminal state.
func (s *Session) observeLocked(remote *protocol.Session) {
	if remote.AppID != "" {
		s.appID = remote.AppID
	}
	s.appInfo = remote.AppInfo
	if len(remote.Log) > 0 {
		s.remoteLog = remote.Log
	}

	if s.state.Terminal() {
		return
	}

	switch remote.State {
	case protocol.SessionStateIdle:
		if s.state == StateStarting {
			s.setState(StateIdle)
		}
	case protocol.SessionStateError:
		s.setState(StateFailed)
	case protocol.SessionStateDead, protocol.SessionStateShuttingDown, protocol.SessionStateSuccess:
		s.setState(StateDead)
	case protocol.SessionStateKilled:
		s.setState(StateKilled)
	}
}

// setState transitions to a new state (caller must hold lock).
func (s *Session) setState(newState State) {
	oldState := s.state
	if oldState == newState {
		return
	}
	s.state = newState
	s.logger.Debug("state transition", "session_id", s.id, "from", oldState.String(), "to", newState.String())
}

// debug logs a debug message tagged with the session id.
func (s *Session) debug(msg string, args ...any) {
	s.mu.RLock()
	id := s.id
	s.mu.RUnlock()
	s.logger.Debug(msg, append([]any{"session_id", id}, args...)...)
}

func (s *Session) sleep(ctx context.Context) error {
	t := time.NewTimer(s.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Session) stateError(op string, err error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateErrorLocked(op, err)
}

func (s *Session) stateErrorLocked(op string, err error) error {
	return &StateError{Op: op, SessionID: s.id, State: s.state, Err: err}
}
