// Package mcp serves the Google SecOps (Chronicle) toolkit over the Model
// Context Protocol.
//
// # What this package does
//
//   - Registers read-only tools for UDM event search, alerts, entity lookup,
//     detection rules and IoC matches, plus a secops_help tool
//   - Serves MCP over stdio (the default) or streamable HTTP
//   - Publishes markdown documentation resources for agents
//   - Returns structured error envelopes with retry hints
//
// The Toolkit type carries the operations themselves and is usable without
// MCP; the example driver calls it directly.
//
// # Instances
//
// Every tool accepts optional project_id, customer_id and region arguments.
// Blank values fall back to the instance of the Chronicle client the Toolkit
// was built with.
//
// # Constructor and lifecycle
//
//	client, err := chronicle.New(ctx, inst)
//	if err != nil {
//		return err
//	}
//	srv, err := mcp.NewServer(mcp.NewServerRequest{
//		Toolkit: mcp.NewToolkit(client),
//		Logger:  logger,
//	})
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx, mcp.TransportStdio)
//
// Run blocks until the client disconnects, the context is cancelled, or the
// transport fails.
package mcp
