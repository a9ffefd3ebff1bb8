// Package config loads cluster definitions and logging settings from HCL files.
//
// A configuration file names one or more clusters and optionally the log output:
//
//	cluster "prod" {
//	  url           = "https://livy.example.com:8998"
//	  username      = "etl"
//	  password      = "secret"
//	  kind          = "pyspark"
//	  poll_interval = "500ms"
//	  page_size     = 65536
//	  conf = {
//	    "spark.executor.memory" = "4g"
//	  }
//	}
//
//	log {
//	  level  = "debug"
//	  format = "json"
//	}
//
// Settings are returned as values and injected into constructors; nothing is stored
// globally.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// ErrUnknownCluster is returned by Lookup for a name that is not configured.
var ErrUnknownCluster = errors.New("unknown cluster")

// File is the decoded form of a configuration file.
type File struct {
	Clusters []*Cluster `hcl:"cluster,block"`
	Log      *Log       `hcl:"log,block"`
}

// Cluster describes one session service endpoint.
type Cluster struct {
	Name         string            `hcl:"name,label"`
	URL          string            `hcl:"url"`
	Username     string            `hcl:"username,optional"`
	Password     string            `hcl:"password,optional"`
	Kind         string            `hcl:"kind,optional"`
	ProxyUser    string            `hcl:"proxy_user,optional"`
	PollInterval string            `hcl:"poll_interval,optional"`
	AppIDTimeout string            `hcl:"app_id_timeout,optional"`
	PageSize     int               `hcl:"page_size,optional"`
	Conf         map[string]string `hcl:"conf,optional"`
	Headers      map[string]string `hcl:"headers,optional"`

	pollInterval time.Duration
	appIDTimeout time.Duration
}

// Poll returns the parsed poll interval, zero if unset.
func (c *Cluster) Poll() time.Duration {
	return c.pollInterval
}

// AppIDWait returns the parsed application id timeout, zero if unset.
func (c *Cluster) AppIDWait() time.Duration {
	return c.appIDTimeout
}

func (c *Cluster) validate() error {
	if c.URL == "" {
		return fmt.Errorf("cluster %q: url is required", c.Name)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("cluster %q: invalid url: %w", c.Name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("cluster %q: url scheme must be http or https, got %q", c.Name, u.Scheme)
	}
	if c.PageSize < 0 {
		return fmt.Errorf("cluster %q: page_size must not be negative", c.Name)
	}
	if c.pollInterval, err = parseDuration(c.PollInterval); err != nil {
		return fmt.Errorf("cluster %q: poll_interval: %w", c.Name, err)
	}
	if c.appIDTimeout, err = parseDuration(c.AppIDTimeout); err != nil {
		return fmt.Errorf("cluster %q: app_id_timeout: %w", c.Name, err)
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// Log configures the log handler.
type Log struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}

// NewLogger builds a logger writing to w. Unknown levels fall back to info and any
// format other than "json" selects text output. A nil Log gives the defaults.
func (l *Log) NewLogger(w io.Writer) *slog.Logger {
	var levelStr, formatStr string
	if l != nil {
		levelStr, formatStr = l.Level, l.Format
	}

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Registry holds the validated clusters of a configuration file.
type Registry struct {
	clusters map[string]*Cluster
	order    []string
	log      *Log
}

// Load parses and validates the HCL file at path.
func Load(path string) (*Registry, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file %s: %s", path, diags.Error())
	}
	return decode(file, path)
}

// Parse parses and validates HCL source. filename is used in diagnostics only.
func Parse(src []byte, filename string) (*Registry, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file %s: %s", filename, diags.Error())
	}
	return decode(file, filename)
}

func decode(file *hcl.File, filename string) (*Registry, error) {
	var f File
	if diags := gohcl.DecodeBody(file.Body, nil, &f); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config file %s: %s", filename, diags.Error())
	}
	return NewRegistry(&f)
}

// NewRegistry validates f and indexes its clusters by name.
func NewRegistry(f *File) (*Registry, error) {
	r := &Registry{
		clusters: make(map[string]*Cluster, len(f.Clusters)),
		log:      f.Log,
	}
	for _, c := range f.Clusters {
		if _, dup := r.clusters[c.Name]; dup {
			return nil, fmt.Errorf("cluster %q defined more than once", c.Name)
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		r.clusters[c.Name] = c
		r.order = append(r.order, c.Name)
	}
	return r, nil
}

// Lookup returns the named cluster. An empty name selects the only configured
// cluster, and fails when there are several.
func (r *Registry) Lookup(name string) (*Cluster, error) {
	if name == "" {
		switch len(r.order) {
		case 0:
			return nil, fmt.Errorf("%w: no clusters configured", ErrUnknownCluster)
		case 1:
			return r.clusters[r.order[0]], nil
		default:
			return nil, fmt.Errorf("%w: cluster name required, have %v", ErrUnknownCluster, r.Names())
		}
	}
	c, ok := r.clusters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCluster, name)
	}
	return c, nil
}

// Names returns the configured cluster names sorted.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Log returns the log block, nil when absent.
func (r *Registry) Log() *Log {
	return r.log
}
