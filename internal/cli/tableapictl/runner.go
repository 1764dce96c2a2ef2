package tableapictl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	Table      string
	TraceID    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	body   []byte
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("tableapictl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8000"), "table API base URL")
	table := fs.String("table", firstNonEmpty(defaults.Table, "students"), "table served by the API")
	traceID := fs.String("trace-id", defaults.TraceID, "X-Trace-ID header sent with the request")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	req, err := buildRequest(fs.Arg(0), fs.Args()[1:], strings.TrimSpace(*table), defaults.Stdin)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, req.body, *traceID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildRequest(command string, args []string, table string, stdin io.Reader) (request, error) {
	collection := "/" + url.PathEscape(table)
	switch strings.TrimSpace(command) {
	case "health":
		return request{method: http.MethodGet, path: "/v1/health"}, nil
	case "ready":
		return request{method: http.MethodGet, path: "/v1/ready"}, nil
	case "export":
		return request{method: http.MethodPost, path: "/v1/export"}, nil
	case "list":
		return request{method: http.MethodGet, path: collection}, nil
	case "get":
		if len(args) != 1 {
			return request{}, fmt.Errorf("get requires exactly one id")
		}
		return request{method: http.MethodGet, path: collection + "/" + url.PathEscape(args[0])}, nil
	case "insert":
		body, err := readPayload(args, stdin)
		if err != nil {
			return request{}, fmt.Errorf("insert: %w", err)
		}
		return request{method: http.MethodPost, path: collection, body: body}, nil
	case "update":
		body, err := readPayload(args, stdin)
		if err != nil {
			return request{}, fmt.Errorf("update: %w", err)
		}
		return request{method: http.MethodPut, path: collection, body: body}, nil
	case "delete":
		if len(args) == 0 {
			return request{}, fmt.Errorf("delete requires at least one id")
		}
		body, err := deletePayload(args)
		if err != nil {
			return request{}, err
		}
		return request{method: http.MethodDelete, path: collection, body: body}, nil
	default:
		return request{}, fmt.Errorf("unknown command %q", command)
	}
}

// readPayload takes the JSON body from the single argument, or from stdin
// when the argument is "-".
func readPayload(args []string, stdin io.Reader) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected one JSON object argument")
	}
	raw := []byte(args[0])
	if args[0] == "-" {
		if stdin == nil {
			return nil, fmt.Errorf("stdin is not available")
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = data
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return raw, nil
}

func deletePayload(ids []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(":null")
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func doRequest(ctx context.Context, client *http.Client, method, url string, body []byte, traceID string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(traceID) != "" {
		req.Header.Set("X-Trace-ID", strings.TrimSpace(traceID))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return "", false
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return "", false
	}
	return buf.String(), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: tableapictl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health             GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready              GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  list               GET /<table>")
	_, _ = fmt.Fprintln(w, "  get <id>           GET /<table>/<id>")
	_, _ = fmt.Fprintln(w, "  insert <json|->    POST /<table>")
	_, _ = fmt.Fprintln(w, "  update <json|->    PUT /<table>")
	_, _ = fmt.Fprintln(w, "  delete <id>...     DELETE /<table>")
	_, _ = fmt.Fprintln(w, "  export             POST /v1/export")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
