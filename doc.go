// Package secops wires a Google SecOps (Chronicle) client, the MCP toolkit,
// an optional evidence archive, and OpenTelemetry exporters from a single
// Config.
//
// # Opening a runtime
//
//	cfg := secops.DefaultConfig()
//	cfg.EvidenceStore = "disk:///var/lib/secops-mcp/evidence"
//	rt, err := secops.Open(ctx, cfg, secops.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer rt.Close(context.Background())
//
//	srv, err := rt.NewMCPServer()
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx, mcp.TransportStdio)
//
// # Instance selection
//
// DefaultConfig reads CHRONICLE_PROJECT_ID, CHRONICLE_CUSTOMER_ID and
// CHRONICLE_REGION. Unset values become placeholders so the process starts
// without configuration; calls against a placeholder instance fail upstream.
// Every MCP tool may still target another instance per call.
//
// # Credentials
//
// CHRONICLE_ACCESS_TOKEN (or Config.AccessToken) supplies a static bearer
// token. Otherwise Google Application Default Credentials are used with the
// cloud-platform scope.
//
// # Evidence archive
//
// Config.EvidenceStore selects where tool results are archived:
//
//   - mem:// keeps records in process memory
//   - disk:///path writes JSON files under path
//   - s3://host[:port]/bucket[/prefix] targets an S3-compatible store
//   - aws://bucket[/prefix]?region=... targets AWS S3
//   - azure://account/container[/prefix] targets Azure Blob Storage
//
// # Telemetry
//
// OTLPEndpoint enables tracing (grpc://, grpcs://, http://, https://, or a bare
// host:port for insecure gRPC). MetricsListen serves Prometheus /metrics.
package secops
