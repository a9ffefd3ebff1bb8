// livy-smoke runs a fixed set of scenarios against a live session service to check
// that sessions, statements and uploads behave end to end.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"

	livy "github.com/smnsjas/go-livycore"
	"github.com/smnsjas/go-livycore/config"
	"github.com/smnsjas/go-livycore/errclass"
	"github.com/smnsjas/go-livycore/protocol"
	"github.com/smnsjas/go-livycore/session"
	"github.com/smnsjas/go-livycore/statement"
)

// TestCase defines a single scenario
type TestCase struct {
	Name        string
	Code        string
	Want        string
	ExpectError bool
	Description string
}

var scalaCases = []TestCase{
	{
		Name:        "Simple Expression",
		Code:        "1+1",
		Want:        "2",
		Description: "Baseline arithmetic to verify statements run",
	},
	{
		Name:        "String Output",
		Code:        `"Hello from Go Livy client!"`,
		Want:        "Hello from Go Livy client!",
		Description: "String result rendered as text/plain",
	},
	{
		Name:        "Spark Job",
		Code:        "spark.range(1000).count()",
		Want:        "1000",
		Description: "Runs a job on the executors",
	},
	{
		Name:        "Large Output",
		Code:        `(1 to 200).map(i => s"Line $i - " + ("X" * 50)).mkString("\n")`,
		Want:        "Line 200",
		Description: "Large output through a single statement result",
	},
	{
		Name:        "Error Handling - Throw",
		Code:        `throw new RuntimeException("Test error from Go client")`,
		ExpectError: true,
		Description: "Exception surfaces as a statement failure",
	},
}

var pysparkCases = []TestCase{
	{
		Name:        "Simple Expression",
		Code:        "1+1",
		Want:        "2",
		Description: "Baseline arithmetic to verify statements run",
	},
	{
		Name:        "Spark Job",
		Code:        "spark.range(1000).count()",
		Want:        "1000",
		Description: "Runs a job on the executors",
	},
	{
		Name:        "Error Handling - Raise",
		Code:        `raise ValueError("Test error from Go client")`,
		ExpectError: true,
		Description: "Exception surfaces as a statement failure",
	},
}

func runTest(ctx context.Context, exec *statement.Executor, tc TestCase) bool {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("TEST: %s\n", tc.Name)
	fmt.Printf("DESC: %s\n", tc.Description)
	fmt.Printf("CODE: %s\n", truncate(tc.Code, 80))
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

	out, err := exec.Run(ctx, tc.Code)
	var ferr *statement.FailureError
	switch {
	case tc.ExpectError && errors.As(err, &ferr):
		fmt.Printf("✅ PASSED: Expected failure received\n")
		fmt.Printf("   Error: %s\n", truncate(ferr.Output.EName+": "+ferr.Output.EValue, 200))
		return true
	case tc.ExpectError && err == nil:
		fmt.Printf("❌ FAILED: Expected failure but statement succeeded\n")
		return false
	case err != nil:
		fmt.Printf("❌ FAILED: %v (%s)\n", err, errclass.Classify(err))
		return false
	}

	text := out.Text()
	if tc.Want != "" && !strings.Contains(text, tc.Want) {
		fmt.Printf("❌ FAILED: Output does not contain %q\n", tc.Want)
		fmt.Printf("   Output: %s\n", truncate(text, 200))
		return false
	}
	fmt.Printf("✅ PASSED: Received output\n")
	fmt.Printf("   Output: %s\n", truncate(text, 200))
	return true
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// runConcurrentTest submits statements from several goroutines; the executor must
// run them one at a time and hand each caller its own output.
func runConcurrentTest(ctx context.Context, exec *statement.Executor) bool {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("TEST: Concurrent Statements\n")
	fmt.Printf("DESC: Submit four statements at once through the executor\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

	const n = 4
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			out, err := exec.Run(ctx, fmt.Sprintf("%d*100", idx+1))
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx] = out.Text()
		}(i)
	}
	wg.Wait()

	passed := true
	for i := range results {
		want := fmt.Sprintf("%d", (i+1)*100)
		switch {
		case errs[i] != nil:
			fmt.Printf("❌ Statement %d error: %v\n", i+1, errs[i])
			passed = false
		case strings.Contains(results[i], want):
			fmt.Printf("✅ Statement %d returned its own output\n", i+1)
		default:
			fmt.Printf("❌ Statement %d output: %s\n", i+1, truncate(results[i], 100))
			passed = false
		}
	}
	if passed {
		fmt.Printf("✅ PASSED: Concurrent statements completed\n")
	}
	return passed
}

func runUploadTest(ctx context.Context, client *livy.Client, s *session.Session, dest string) bool {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("TEST: Chunked Upload\n")
	fmt.Printf("DESC: Write a multi-page file to %s\n", dest)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

	data := bytes.Repeat([]byte("0123456789abcdef"), 20000)
	n, err := client.Upload(ctx, s, dest, bytes.NewReader(data))
	if err != nil {
		fmt.Printf("❌ FAILED: %v\n", err)
		return false
	}
	fmt.Printf("✅ PASSED: Uploaded %d bytes\n", n)
	return true
}

// connect resolves the cluster and builds a client whose library logs follow the
// configuration's log block and go to logOut.
func connect(configPath, clusterName, url string, logOut io.Writer) (*livy.Client, error) {
	var reg *config.Registry
	var err error
	if configPath != "" {
		reg, err = config.Load(configPath)
	} else {
		reg, err = config.NewRegistry(&config.File{Clusters: []*config.Cluster{{Name: "default", URL: url}}})
	}
	if err != nil {
		return nil, err
	}
	cluster, err := reg.Lookup(clusterName)
	if err != nil {
		return nil, err
	}
	return livy.Connect(cluster, livy.WithLogger(reg.Log().NewLogger(logOut))), nil
}

func main() {
	// Trap Ctrl+C for clean shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	configPath := flag.String("config", "", "HCL configuration file")
	clusterName := flag.String("cluster", "", "cluster name in the configuration file")
	url := flag.String("url", "", "service URL, used when no configuration file is given")
	kind := flag.String("kind", "spark", "session kind: spark or pyspark")
	dest := flag.String("dest", "", "cluster path for the upload scenario; skipped when empty")
	flag.Parse()

	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          Livy Session Smoke Suite                            ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")

	client, err := connect(*configPath, *clusterName, *url, os.Stderr)
	if err != nil {
		log.Fatalf("Configuration failed: %v", err)
	}
	cluster := client.Cluster()

	log.Printf("Opening %s session on %s...", *kind, cluster.URL)
	s, err := client.OpenSession(ctx, protocol.Kind(*kind))
	if err != nil {
		log.Fatalf("OpenSession failed (%s): %v", errclass.Classify(err), err)
	}
	id, _ := s.ID()
	log.Printf("Session %d ready!", id)

	cases := scalaCases
	if protocol.Kind(*kind) == protocol.KindPySpark {
		cases = pysparkCases
	}

	passed, failed := 0, 0
	record := func(ok bool) {
		if ok {
			passed++
		} else {
			failed++
		}
	}
	for _, tc := range cases {
		record(runTest(ctx, s.Executor(), tc))
	}
	record(runConcurrentTest(ctx, s.Executor()))
	if *dest != "" {
		record(runUploadTest(ctx, client, s, *dest))
	}

	log.Println("Killing session...")
	if err := s.Kill(context.Background()); err != nil {
		log.Printf("Kill failed: %v", err)
	}

	fmt.Println("\n═══════════════════════════════════════════════════════════════")
	fmt.Printf("RESULTS: %d passed, %d failed\n", passed, failed)
	fmt.Println("═══════════════════════════════════════════════════════════════")
	if failed > 0 {
		os.Exit(1)
	}
}
