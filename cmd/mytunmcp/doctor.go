package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"

	mytunmcp "github.com/sqlbridge/mysql-tunnel-mcp"
	"github.com/sqlbridge/mysql-tunnel-mcp/internal/meta"
)

func runDoctor() error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", ".mytunmcp/config.json", "Path to configuration file")
	fs.Parse(os.Args[2:])

	useColor := isTTY(os.Stderr.Fd())
	return doctor(os.Stderr, useColor, *configPath)
}

func doctor(w io.Writer, useColor bool, configPath string) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "mytunmcp %s\n\n", meta.Version)

	// Load and validate config
	config, ok := doctorValidateConfig(w, useColor, configPath)
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'mytunmcp doctor' again.")
		return nil
	}

	// Print agent connection snippets
	fmt.Fprintln(w)
	printAgentSnippets(w, useColor, config)
	return nil
}

// doctorValidateConfig loads and validates the config file, printing check results.
// Returns the parsed config and true if all checks passed.
func doctorValidateConfig(w io.Writer, useColor bool, configPath string) (*mytunmcp.ServerConfig, bool) {
	allPassed := true

	// Check 1: Config file exists and is valid JSON
	data, err := os.ReadFile(configPath)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file readable (%s)", configPath))
		allPassed = false
		return nil, allPassed
	}
	printCheck(w, useColor, true, fmt.Sprintf("Config file readable (%s)", configPath))

	var config mytunmcp.ServerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file is valid JSON: %v", err))
		allPassed = false
		return nil, allPassed
	}
	printCheck(w, useColor, true, "Config file is valid JSON")

	// Check 2: required SSH fields
	if config.SSH.Host == "" {
		printCheck(w, useColor, false, "ssh.host is set")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("ssh.host is set (%s)", config.SSH.Host))
	}
	if config.SSH.User == "" {
		printCheck(w, useColor, false, "ssh.user is set")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("ssh.user is set (%s)", config.SSH.User))
	}

	// Check 3: SSH private key file exists and is readable
	if config.SSH.KeyPath == "" {
		printCheck(w, useColor, false, "ssh.key_path is set")
		allPassed = false
	} else if _, err := os.Stat(config.SSH.KeyPath); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("ssh.key_path exists (%s): %v", config.SSH.KeyPath, err))
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("ssh.key_path exists (%s)", config.SSH.KeyPath))
	}

	// Check 4: known_hosts file, when host key verification is enabled
	if config.SSH.KnownHostsPath == "" {
		printCheck(w, useColor, true, "ssh.known_hosts_path not set (host key verification disabled)")
	} else if _, err := os.Stat(config.SSH.KnownHostsPath); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("ssh.known_hosts_path exists (%s): %v", config.SSH.KnownHostsPath, err))
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("ssh.known_hosts_path exists (%s)", config.SSH.KnownHostsPath))
	}

	// Check 5: database.name is set
	if config.Database.Name == "" {
		printCheck(w, useColor, false, "database.name is set")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("database.name is set (%s)", config.Database.Name))
	}

	// Check 6: transport settings
	transport := config.Server.Transport
	if transport == "" {
		transport = "stdio"
	}
	switch transport {
	case "stdio":
		printCheck(w, useColor, true, "server.transport is stdio")
	case "http":
		if config.Server.Port <= 0 {
			printCheck(w, useColor, false, "server.port is > 0 (required when transport is http)")
			allPassed = false
		} else {
			printCheck(w, useColor, true, fmt.Sprintf("server.transport is http on port %d", config.Server.Port))
		}
		if config.Server.HealthCheckEnabled && config.Server.HealthCheckPath == "" {
			printCheck(w, useColor, false, "health_check_path is set (required when health_check_enabled)")
			allPassed = false
		}
	default:
		printCheck(w, useColor, false, fmt.Sprintf("server.transport is stdio or http (got %q)", transport))
		allPassed = false
	}

	// Check 7: Regex patterns compile
	regexOK := true

	for i, rule := range config.Hints {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("hints[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}

	for i, rule := range config.Sanitization {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("sanitization[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}

	for i, rule := range config.Query.TimeoutRules {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("timeout_rules[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}

	if regexOK {
		printCheck(w, useColor, true, "All regex patterns compile")
	}

	return &config, allPassed
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	if pass {
		if useColor {
			fmt.Fprintf(w, "  \033[32m✓\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✓ %s\n", msg)
		}
	} else {
		if useColor {
			fmt.Fprintf(w, "  \033[31m✗\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✗ %s\n", msg)
		}
	}
}

// printAgentSnippets prints MCP connection config snippets for various AI agents.
func printAgentSnippets(w io.Writer, useColor bool, config *mytunmcp.ServerConfig) {
	heading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "\033[1;36m%s\033[0m\n", title)
		} else {
			fmt.Fprintln(w, title)
		}
	}

	subheading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "  \033[1m%s\033[0m\n", title)
		} else {
			fmt.Fprintf(w, "  %s\n", title)
		}
	}

	heading("Agent Connection Snippets")
	fmt.Fprintln(w)

	if config.Server.Transport == "http" {
		url := fmt.Sprintf("http://localhost:%d/mcp", config.Server.Port)

		subheading("Claude Code")
		fmt.Fprintf(w, "  Run this command to add the server:\n\n")
		fmt.Fprintf(w, "    claude mcp add --transport http mysql %s\n\n", url)
		fmt.Fprintf(w, "  Or add to .mcp.json (project scope):\n\n")
		fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "type": "http",
        "url": "%s"
      }
    }
  }
`, url)
		fmt.Fprintln(w)

		subheading("Gemini CLI (~/.gemini/settings.json)")
		fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "httpUrl": "%s"
      }
    }
  }
`, url)
		fmt.Fprintln(w)

		subheading("Cursor (.cursor/mcp.json)")
		fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "url": "%s"
      }
    }
  }
`, url)
		return
	}

	bin, err := os.Executable()
	if err != nil {
		bin = "mytunmcp"
	}

	subheading("Claude Code")
	fmt.Fprintf(w, "  Run this command to add the server:\n\n")
	fmt.Fprintf(w, "    claude mcp add mysql -- %s serve\n\n", bin)
	fmt.Fprintf(w, "  Or add to .mcp.json (project scope):\n\n")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "command": "%s",
        "args": ["serve"]
      }
    }
  }
`, bin)
	fmt.Fprintln(w)

	subheading("Gemini CLI (~/.gemini/settings.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "command": "%s",
        "args": ["serve"]
      }
    }
  }
`, bin)
	fmt.Fprintln(w)

	subheading("Cursor (.cursor/mcp.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "command": "%s",
        "args": ["serve"]
      }
    }
  }
`, bin)
}
