package tableapictl

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type captured struct {
	method  string
	path    string
	body    string
	traceID string
	ctype   string
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.method = r.Method
		got.path = r.URL.Path
		got.body = string(body)
		got.traceID = r.Header.Get("X-Trace-ID")
		got.ctype = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestRunListCommand(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `[{"id":1,"name":"Ann"}]`)

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-trace-id", "trace-1",
		"list",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if got.method != http.MethodGet || got.path != "/students" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
	if got.traceID != "trace-1" {
		t.Fatalf("trace id = %q", got.traceID)
	}
	if !strings.Contains(stdout.String(), `"name": "Ann"`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunGetUsesConfiguredTable(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `[]`)

	code := Run(context.Background(), []string{"-base-url", srv.URL, "-table", "courses", "get", "42"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodGet || got.path != "/courses/42" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
}

func TestRunInsertSendsPayloadVerbatim(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"inserted":2}`)

	payload := `{"b": {"name": "Bob"}, "a": {"name": "Ann"}}`
	code := Run(context.Background(), []string{"-base-url", srv.URL, "insert", payload}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodPost || got.path != "/students" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
	if got.body != payload {
		t.Fatalf("body = %s", got.body)
	}
	if got.ctype != "application/json" {
		t.Fatalf("content type = %q", got.ctype)
	}
}

func TestRunUpdateReadsStdin(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"updated":1,"skipped":0}`)

	code := Run(context.Background(), []string{"-base-url", srv.URL, "update", "-"}, Options{
		Stdin: strings.NewReader(`{"3": {"age": 21}}`),
	})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodPut || got.body != `{"3": {"age": 21}}` {
		t.Fatalf("request = %s %s", got.method, got.body)
	}
}

func TestRunDeleteBuildsIDObject(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"deleted":2,"skipped":0}`)

	code := Run(context.Background(), []string{"-base-url", srv.URL, "delete", "3", "4"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodDelete || got.body != `{"3":null,"4":null}` {
		t.Fatalf("request = %s %s", got.method, got.body)
	}
}

func TestRunExportCommand(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"object_key":"students/x.parquet"}`)

	code := Run(context.Background(), []string{"-base-url", srv.URL, "export"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodPost || got.path != "/v1/export" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv, _ := newServer(t, http.StatusNotFound, `{"error_code":"NOT_FOUND"}`)

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "get", "9"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http 404") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	tests := [][]string{
		{},
		{"unknown"},
		{"get"},
		{"insert"},
		{"insert", "not json"},
		{"update", "[1,2]"},
		{"delete"},
	}
	for _, args := range tests {
		var stderr bytes.Buffer
		code := Run(context.Background(), args, Options{Stderr: &stderr})
		if code != 2 {
			t.Fatalf("Run(%v) exit code = %d", args, code)
		}
		if stderr.Len() == 0 {
			t.Fatalf("Run(%v) expected usage output", args)
		}
	}
}
