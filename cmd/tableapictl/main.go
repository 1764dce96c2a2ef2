package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tableapi/tableapi/internal/cli/tableapictl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("TABLEAPI_CLI_TIMEOUT")), 10*time.Second)
	options := tableapictl.Options{
		BaseURL: envOr("TABLEAPI_API_URL", "http://localhost:8000"),
		Table:   envOr("TABLEAPI_TABLE_NAME", "students"),
		Timeout: timeout,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	code := tableapictl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid TABLEAPI_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
