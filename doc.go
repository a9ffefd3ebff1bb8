// Package livy is a client for interactive sessions on a remote Spark cluster served
// over a REST session service.
//
// The library is organized into layers:
//
//   - livy: connects a configured cluster to sessions and uploads
//   - session: session state machine and statement polling
//   - statement: one-at-a-time statement executor and outputs
//   - protocol: REST request/response types and the HTTP client
//   - clusterfs: chunked writes of byte streams to the cluster filesystem
//   - fragments: paging and reassembly of byte streams
//   - config: HCL cluster registry and logging settings
//   - errclass: attribution of errors to service, user or tool
//
// # Basic Usage
//
//	reg, err := config.Load("livy.hcl")
//	if err != nil {
//	    return err
//	}
//	cluster, err := reg.Lookup("prod")
//	if err != nil {
//	    return err
//	}
//	client := livy.Connect(cluster)
//
//	s, err := client.OpenSession(ctx, protocol.KindSpark)
//	if err != nil {
//	    return err
//	}
//	defer s.Kill(context.Background())
//
//	out, err := s.Executor().Run(ctx, "spark.range(10).count()")
//
// # Reference
//
// Apache Livy REST API: https://livy.apache.org/docs/latest/rest-api.html
package livy

// Version is the library version.
const Version = "0.1.0-dev"
