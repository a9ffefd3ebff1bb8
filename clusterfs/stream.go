// Package clusterfs writes byte streams into the cluster's distributed filesystem
// using only code statements.
//
// WriteStream is an io.WriteCloser. Bytes are buffered and cut into pages; each page
// is sent base64 encoded inside one statement that creates or appends to the
// destination file. A statement is submitted only after the previous one completed,
// so the remote file receives the bytes in write order.
//
//	w, err := clusterfs.NewWriteStream(ctx, sess.Executor(), sess.Kind(), "/user/me/app.jar")
//	if err != nil {
//	    return err
//	}
//	if _, err := io.Copy(w, f); err != nil {
//	    return err
//	}
//	return w.Close()
//
// The stream borrows the executor: the session must stay alive until Close returns.
// A stream is single-writer.
package clusterfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/smnsjas/go-livycore/fragments"
	"github.com/smnsjas/go-livycore/protocol"
	"github.com/smnsjas/go-livycore/statement"
)

// ErrStreamClosed is matched by errors.Is for writes or closes after Close.
var ErrStreamClosed = errors.New("cluster file stream closed")

// StreamClosedError is returned by Write and Close once the stream is closed.
type StreamClosedError struct {
	Path string
}

func (e *StreamClosedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrStreamClosed, e.Path)
}

// Is reports whether target is ErrStreamClosed.
func (e *StreamClosedError) Is(target error) bool {
	return target == ErrStreamClosed
}

// Executor runs one statement and waits for its output.
// *statement.Executor satisfies it.
type Executor interface {
	Run(ctx context.Context, code string) (*statement.Output, error)
}

// Option configures a WriteStream.
type Option func(*WriteStream)

// WithPageSize sets the maximum number of decoded bytes per statement.
func WithPageSize(n int) Option {
	return func(w *WriteStream) {
		w.pageSize = n
	}
}

// WithTemplate overrides the statement template chosen from the session kind.
func WithTemplate(t Template) Option {
	return func(w *WriteStream) {
		w.tmpl = t
	}
}

// WithLogger sets the logger for debug logging.
func WithLogger(logger *slog.Logger) Option {
	return func(w *WriteStream) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WriteStream materializes written bytes as a file at a remote path.
type WriteStream struct {
	mu sync.Mutex

	ctx      context.Context
	exec     Executor
	path     string
	tmpl     Template
	pageSize int
	logger   *slog.Logger

	fragmenter *fragments.Fragmenter
	pending    []byte
	statements int
	closed     bool
	err        error
}

// NewWriteStream creates a stream writing to path through exec. ctx bounds every
// statement the stream issues.
func NewWriteStream(ctx context.Context, exec Executor, kind protocol.Kind, path string,
	opts ...Option) (*WriteStream, error) {
	if err := validPath(path); err != nil {
		return nil, err
	}
	w := &WriteStream{
		ctx:      ctx,
		exec:     exec,
		path:     path,
		pageSize: fragments.DefaultPageSize,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.tmpl == nil {
		tmpl, err := TemplateFor(kind)
		if err != nil {
			return nil, err
		}
		w.tmpl = tmpl
	}
	w.fragmenter = fragments.NewFragmenter(w.pageSize)
	w.pageSize = w.fragmenter.PageSize()
	w.logger = w.logger.With("path", path)
	return w, nil
}

// Path returns the destination path.
func (w *WriteStream) Path() string {
	return w.path
}

// PageSize returns the maximum number of decoded bytes per statement.
func (w *WriteStream) PageSize() int {
	return w.pageSize
}

// Statements returns the number of statements completed so far.
func (w *WriteStream) Statements() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.statements
}

// Write buffers p and sends every complete page. On failure the stream becomes
// unusable and the error is returned by every later call.
func (w *WriteStream) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, &StreamClosedError{Path: w.path}
	}
	if w.err != nil {
		return 0, w.err
	}

	w.pending = append(w.pending, p...)
	frags, rest := w.fragmenter.Split(w.pending, false)
	if err := w.send(frags); err != nil {
		return 0, err
	}
	w.pending = append(w.pending[:0], rest...)
	return len(p), nil
}

// Close flushes the remaining bytes and closes the stream. An empty stream still
// creates an empty file. A second Close returns a *StreamClosedError without
// flushing again.
func (w *WriteStream) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &StreamClosedError{Path: w.path}
	}
	w.closed = true
	if w.err != nil {
		return w.err
	}

	frags, _ := w.fragmenter.Split(w.pending, true)
	err := w.send(frags)
	w.pending = nil
	if err != nil {
		return err
	}
	w.logger.Debug("cluster file written", "statements", w.statements)
	return nil
}

// send runs one statement per fragment, each after the previous one completed
// (caller must hold lock).
func (w *WriteStream) send(frags []*fragments.Fragment) error {
	for _, frag := range frags {
		code := w.tmpl(w.path, frag)
		if _, err := w.exec.Run(w.ctx, code); err != nil {
			w.err = fmt.Errorf("write page %d of %s: %w", frag.Seq, w.path, err)
			w.logger.Debug("page write failed", "seq", frag.Seq, "error", err)
			return w.err
		}
		w.statements++
		w.logger.Debug("page written", "seq", frag.Seq, "bytes", len(frag.Data))
	}
	return nil
}

// Upload copies r into a new file at path and closes it.
func Upload(ctx context.Context, exec Executor, kind protocol.Kind, path string, r io.Reader,
	opts ...Option) (int64, error) {
	w, err := NewWriteStream(ctx, exec, kind, path, opts...)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return n, err
	}
	return n, w.Close()
}
