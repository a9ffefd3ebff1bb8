// livy-client opens an interactive session on a cluster, optionally uploads a file
// and runs code in it.
//
//	livy-client -config livy.hcl -cluster prod -code 'spark.range(10).count()'
//	livy-client -url http://localhost:8998 -upload app.jar -dest /user/me/app.jar
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	livy "github.com/smnsjas/go-livycore"
	"github.com/smnsjas/go-livycore/config"
	"github.com/smnsjas/go-livycore/errclass"
	"github.com/smnsjas/go-livycore/protocol"
)

// Exit codes by error class.
const (
	exitOK      = 0
	exitFailure = 1
	exitUser    = 2
	exitService = 3
	exitTool    = 4
)

func main() {
	// Trap Ctrl+C for clean shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Printf("livy-client: %v", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch errclass.Classify(err) {
	case errclass.User:
		return exitUser
	case errclass.Service:
		return exitService
	case errclass.Tool:
		return exitTool
	default:
		return exitFailure
	}
}

type options struct {
	configPath string
	cluster    string
	url        string
	kind       string
	code       string
	upload     string
	dest       string
	keep       bool
	logLevel   string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet("livy-client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "HCL configuration file")
	fs.StringVar(&o.cluster, "cluster", "", "cluster name in the configuration file")
	fs.StringVar(&o.url, "url", "", "service URL, used when no configuration file is given")
	fs.StringVar(&o.kind, "kind", "", "session kind: spark, pyspark, sparkr or sql")
	fs.StringVar(&o.code, "code", "", "code to run in the session")
	fs.StringVar(&o.upload, "upload", "", "local file to upload")
	fs.StringVar(&o.dest, "dest", "", "destination path of the upload on the cluster filesystem")
	fs.BoolVar(&o.keep, "keep", false, "leave the session running on exit")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if o.configPath == "" && o.url == "" {
		return nil, errors.New("one of -config or -url is required")
	}
	if o.upload != "" && o.dest == "" {
		return nil, errors.New("-upload requires -dest")
	}
	if o.code == "" && o.upload == "" {
		return nil, errors.New("nothing to do: set -code or -upload")
	}
	return &o, nil
}

func loadRegistry(o *options) (*config.Registry, error) {
	if o.configPath != "" {
		return config.Load(o.configPath)
	}
	return config.NewRegistry(&config.File{
		Clusters: []*config.Cluster{{Name: "default", URL: o.url}},
	})
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	reg, err := loadRegistry(o)
	if err != nil {
		return err
	}
	cluster, err := reg.Lookup(o.cluster)
	if err != nil {
		return err
	}

	logCfg := config.Log{}
	if l := reg.Log(); l != nil {
		logCfg = *l
	}
	if o.logLevel != "" {
		logCfg.Level = o.logLevel
	}
	logger := logCfg.NewLogger(stderr)

	client := livy.Connect(cluster, livy.WithLogger(logger))
	logger.Info("opening session", "url", cluster.URL, "kind", client.Kind(protocol.Kind(o.kind)))

	s, err := client.OpenSession(ctx, protocol.Kind(o.kind))
	if err != nil {
		return err
	}
	id, _ := s.ID()
	logger.Info("session ready", "session_id", id)

	defer func() {
		if o.keep {
			logger.Info("leaving session running", "session_id", id, "url", client.Protocol().SessionURL(id))
			return
		}
		if kerr := s.Kill(context.WithoutCancel(ctx)); kerr != nil && err == nil {
			err = kerr
		}
	}()

	if o.upload != "" {
		f, err := os.Open(o.upload)
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := client.Upload(ctx, s, o.dest, f)
		if err != nil {
			return fmt.Errorf("upload %s: %w", o.upload, err)
		}
		logger.Info("upload complete", "dest", o.dest, "bytes", n)
	}

	if o.code != "" {
		out, err := s.Executor().Run(ctx, o.code)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, out.Text())
	}
	return nil
}
