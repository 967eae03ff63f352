// Package mytunmcp gives AI agents read-only MySQL access through an
// on-demand SSH tunnel, exposed via the Model Context Protocol (MCP).
//
// It provides four tools — ReadQuery, ListTables, DescribeTable, and
// ConnectDB — backed by a connection orchestrator that opens the tunnel
// lazily on the first operation, multiplexes queries through a single
// forwarded local port, recovers from dropped connections with exactly one
// retry, and tears everything down after an idle period.
//
// Queries are restricted to SELECT, SHOW, and DESCRIBE at the statement-verb
// level; caller-supplied identifiers are sanitized to [A-Za-z0-9_] before
// being embedded. Values are always bound positionally. On top of that the
// pipeline supports per-pattern query timeouts, regex-based result masking,
// result truncation, and error hints that steer the agent toward a fix.
//
// # Usage
//
//	engine, err := mytunmcp.New(mytunmcp.Config{
//		SSH: mytunmcp.SSHConfig{
//			Host:    "bastion.example.com",
//			User:    "deploy",
//			KeyPath: "/home/deploy/.ssh/id_ed25519",
//		},
//		Database: mytunmcp.DatabaseConfig{Name: "app", Password: password},
//		Query: mytunmcp.QueryConfig{
//			DefaultTimeoutSeconds:       30,
//			ListTablesTimeoutSeconds:    10,
//			DescribeTableTimeoutSeconds: 10,
//		},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close(ctx)
//
//	// Use directly
//	output := engine.ReadQuery(ctx, mytunmcp.QueryInput{SQL: "SELECT * FROM users LIMIT 10"})
//
//	// Or register as MCP tools
//	mytunmcp.RegisterMCPTools(mcpServer, engine)
//
// No tunnel or database I/O happens until the first operation; connect_db
// exists for agents that want to warm the path up explicitly.
package mytunmcp
