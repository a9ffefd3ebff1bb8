package livy

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/smnsjas/go-livycore/clusterfs"
	"github.com/smnsjas/go-livycore/config"
	"github.com/smnsjas/go-livycore/protocol"
	"github.com/smnsjas/go-livycore/session"
)

// Client opens sessions on one configured cluster.
type Client struct {
	cluster *config.Cluster
	proto   *protocol.Client
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = hc
	}
}

// WithLogger sets the logger handed to sessions and streams.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// Connect creates a Client for cluster. No request is sent until a session is
// opened.
func Connect(cluster *config.Cluster, opts ...ClientOption) *Client {
	o := clientOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}

	popts := []protocol.Option{}
	if o.httpClient != nil {
		popts = append(popts, protocol.WithHTTPClient(o.httpClient))
	}
	if cluster.Username != "" {
		popts = append(popts, protocol.WithBasicAuth(cluster.Username, cluster.Password))
	}
	for k, v := range cluster.Headers {
		popts = append(popts, protocol.WithHeader(k, v))
	}

	return &Client{
		cluster: cluster,
		proto:   protocol.NewClient(cluster.URL, popts...),
		logger:  o.logger.With("cluster", cluster.Name),
	}
}

// Cluster returns the cluster settings the client was built from.
func (c *Client) Cluster() *config.Cluster {
	return c.cluster
}

// Protocol returns the underlying REST client.
func (c *Client) Protocol() *protocol.Client {
	return c.proto
}

// Kind resolves the session kind: kind if set, else the cluster default, else spark.
func (c *Client) Kind(kind protocol.Kind) protocol.Kind {
	if kind != "" {
		return kind
	}
	if c.cluster.Kind != "" {
		return protocol.Kind(c.cluster.Kind)
	}
	return protocol.KindSpark
}

// NewSession builds a session carrying the cluster defaults. opts are applied after
// the defaults and override them.
func (c *Client) NewSession(kind protocol.Kind, opts ...session.Option) *session.Session {
	defaults := []session.Option{
		session.WithLogger(c.logger),
		session.WithPollInterval(c.cluster.Poll()),
		session.WithAppIDTimeout(c.cluster.AppIDWait()),
	}
	if c.cluster.ProxyUser != "" {
		defaults = append(defaults, session.WithProxyUser(c.cluster.ProxyUser))
	}
	if len(c.cluster.Conf) > 0 {
		defaults = append(defaults, session.WithConf(c.cluster.Conf))
	}
	return session.New(c.proto, c.Kind(kind), append(defaults, opts...)...)
}

// OpenSession creates a session and waits until it is ready for statements. If
// waiting fails the session is killed before the error is returned.
func (c *Client) OpenSession(ctx context.Context, kind protocol.Kind,
	opts ...session.Option) (*session.Session, error) {
	s := c.NewSession(kind, opts...)
	if err := s.Create(ctx); err != nil {
		return nil, err
	}
	if err := s.WaitReady(ctx); err != nil {
		if kerr := s.Kill(context.WithoutCancel(ctx)); kerr != nil {
			c.logger.Warn("kill after failed start", "error", kerr)
		}
		return nil, err
	}
	return s, nil
}

// Upload copies r to path on the cluster filesystem through s, using the cluster
// page size.
func (c *Client) Upload(ctx context.Context, s *session.Session, path string, r io.Reader) (int64, error) {
	return clusterfs.Upload(ctx, s.Executor(), s.Kind(), path, r,
		clusterfs.WithPageSize(c.cluster.PageSize),
		clusterfs.WithLogger(c.logger))
}
