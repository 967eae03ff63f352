package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	mytunmcp "github.com/sqlbridge/mysql-tunnel-mcp"
	"github.com/sqlbridge/mysql-tunnel-mcp/internal/meta"
)

const httpShutdownTimeout = 10 * time.Second

func runServe() error {
	// Shutdown is signal driven: SIGINT or SIGTERM cancels the context and
	// the transport loops below return.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional .env next to the working directory, for local development.
	_ = godotenv.Load()

	// 1. Load ServerConfig
	serverConfig, err := loadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	transport := serverConfig.Server.Transport
	if transport == "" {
		transport = "stdio"
	}
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unknown server.transport %q, must be stdio or http", transport)
	}
	if transport == "http" && serverConfig.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when transport is http, got %d", serverConfig.Server.Port)
	}

	// 2. Resolve database password
	if serverConfig.Database.Password == "" {
		serverConfig.Database.Password = os.Getenv("MYTUNMCP_DB_PASSWORD")
	}
	if serverConfig.Database.Password == "" && isTTY(os.Stdin.Fd()) {
		serverConfig.Database.Password = promptPassword(fmt.Sprintf("Password for %s@%s: ", serverConfig.Database.User, serverConfig.Database.Name))
	}

	// 3. Setup logger
	logger := setupLogger(serverConfig.Logging)

	// 4. Create engine. No tunnel or database I/O happens here; the first
	// tool call establishes both.
	engine, err := mytunmcp.New(serverConfig.Config, logger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer engine.Close(context.Background())

	// 5. Create MCP server with initialize lifecycle logging
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("mytunmcp", meta.Version,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)

	mytunmcp.RegisterMCPTools(mcpServer, engine)

	if transport == "stdio" {
		logger.Info().Msg("starting mytunmcp server on stdio")
		stdioServer := server.NewStdioServer(mcpServer)
		err := stdioServer.Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info().Msg("shutting down")
		return nil
	}

	return serveHTTP(ctx, serverConfig, mcpServer, logger)
}

func serveHTTP(ctx context.Context, serverConfig *mytunmcp.ServerConfig, mcpServer *server.MCPServer, logger zerolog.Logger) error {
	addr := fmt.Sprintf(":%d", serverConfig.Server.Port)
	mux := http.NewServeMux()

	// Health check endpoint (process liveness only, not DB connectivity)
	if serverConfig.Server.HealthCheckEnabled {
		if serverConfig.Server.HealthCheckPath == "" {
			return fmt.Errorf("health_check_path must be set when health_check_enabled is true")
		}
		mux.HandleFunc(serverConfig.Server.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Create StreamableHTTPServer with custom http.Server
	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Manually register the MCP handler — Start() does NOT register
	// when a custom *http.Server is provided via WithStreamableHTTPServer.
	mux.Handle("/mcp", streamableServer)

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		// Cleanup failures on shutdown are logged, never surfaced.
		if err := streamableServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown error")
		}
	}()

	logger.Info().Int("port", serverConfig.Server.Port).Msg("starting mytunmcp server")
	err := streamableServer.Start(addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func loadServerConfig() (*mytunmcp.ServerConfig, error) {
	configPath := os.Getenv("MYTUNMCP_CONFIG_PATH")
	if configPath == "" {
		configPath = ".mytunmcp/config.json"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config mytunmcp.ServerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

func setupLogger(config mytunmcp.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	// stdout is reserved for the MCP stdio transport, so logs default to
	// stderr.
	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return ""
	}
	return string(password)
}
