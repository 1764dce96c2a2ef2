package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tableapi/tableapi/internal/config"
	"github.com/tableapi/tableapi/internal/export"
	"github.com/tableapi/tableapi/internal/resource"
	"github.com/tableapi/tableapi/internal/rows"
)

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeObject(t, rr)
	if body["service"] != "tableapi-server" {
		t.Fatalf("service = %v", body["service"])
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeObject(t, rr)
	if body["error_code"] != "NOT_READY" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestCheckDatabaseDSN(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"TABLEAPI_DB_DRIVER": "pgx"})
	if err := CheckDatabaseDSN(cfg)(context.Background()); err != nil {
		t.Fatalf("assembled dsn should pass: %v", err)
	}
	cfg.Database.Host = ""
	cfg.Database.DSN = ""
	if err := CheckDatabaseDSN(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing dsn error")
	}
}

func TestIndexServedOnlyAtRoot(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Index: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "<html>ok</html>")
		}),
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "<html>ok</html>" {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/console", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRowRoutesFollowConfiguredTable(t *testing.T) {
	svc := &fakeRows{list: []rows.Row{{{Column: "id", Value: int64(1)}}}}
	h := NewHandler(loadConfig(t, map[string]string{"TABLEAPI_TABLE_NAME": "courses"}), Dependencies{Rows: svc})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/courses", nil))
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `[{"id":1}]` {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/students", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unconfigured table status = %d", rr.Code)
	}
}

func TestUnsupportedMethodIsRejected(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Rows: &fakeRows{}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/students", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRowsNotConfigured(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/students", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeObject(t, rr); body["error_code"] != "ROWS_NOT_CONFIGURED" {
		t.Fatalf("body = %v", body)
	}
}

func TestItemGetRejectsNonDigitIDWithoutLookup(t *testing.T) {
	svc := &fakeRows{}
	h := NewHandler(loadConfig(t, nil), Dependencies{Rows: svc})

	for _, path := range []string{"/students/abc", "/students/-1", "/students/1.5"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
	}
	if svc.getCalls != 0 {
		t.Fatalf("Get called %d times", svc.getCalls)
	}
}

func TestItemGetMapsErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "not found", err: resource.ErrNotFound, wantCode: http.StatusNotFound, wantErr: "NOT_FOUND"},
		{name: "statement", err: errors.New("syntax error"), wantCode: http.StatusInternalServerError, wantErr: "STATEMENT_ERROR"},
		{name: "timeout", err: context.DeadlineExceeded, wantCode: http.StatusGatewayTimeout, wantErr: "STATEMENT_TIMEOUT"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(loadConfig(t, nil), Dependencies{Rows: &fakeRows{getErr: tc.err}})
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/students/7", nil)
			req.Header.Set("X-Trace-ID", "trace-7")
			h.ServeHTTP(rr, req)
			if rr.Code != tc.wantCode {
				t.Fatalf("status = %d", rr.Code)
			}
			body := decodeObject(t, rr)
			if body["error_code"] != tc.wantErr || body["trace_id"] != "trace-7" {
				t.Fatalf("body = %v", body)
			}
		})
	}
}

func TestMalformedBodiesAreNoOps(t *testing.T) {
	bodies := []string{"", "not json", "[1,2]", `{"1": {"name": "Ann"}`, `{"1": [1]}`, `{"1": 5}`}
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		for _, raw := range bodies {
			svc := &fakeRows{}
			h := NewHandler(loadConfig(t, nil), Dependencies{Rows: svc})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(method, "/students", strings.NewReader(raw)))
			if rr.Code != http.StatusOK {
				t.Fatalf("%s %q status = %d, body=%s", method, raw, rr.Code, rr.Body.String())
			}
			if method != http.MethodDelete && svc.entries != 0 {
				t.Fatalf("%s %q passed %d entries", method, raw, svc.entries)
			}
		}
	}
}

func TestDeleteIgnoresEntryValues(t *testing.T) {
	svc := &fakeRows{}
	h := NewHandler(loadConfig(t, nil), Dependencies{Rows: svc})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/students", strings.NewReader(`{"3": null, "4": [1], "5": 5}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.Join(svc.deleted, ",") != "3,4,5" {
		t.Fatalf("deleted = %v", svc.deleted)
	}
}

func TestOversizedBodyIsNoOp(t *testing.T) {
	svc := &fakeRows{}
	h := NewHandler(loadConfig(t, nil), Dependencies{Rows: svc, MaxBodyBytes: 16})
	payload := `{"1": {"name": "a very long name that exceeds the limit"}}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/students", strings.NewReader(payload)))
	if rr.Code != http.StatusOK || svc.entries != 0 {
		t.Fatalf("status = %d, entries = %d", rr.Code, svc.entries)
	}
}

func TestBatchResponsesReportCounts(t *testing.T) {
	svc := &fakeRows{result: resource.BatchResult{Applied: 2, Skipped: 1}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Rows: svc})

	cases := map[string]string{
		http.MethodPost:   `{"inserted":2}`,
		http.MethodPut:    `{"skipped":1,"updated":2}`,
		http.MethodDelete: `{"deleted":2,"skipped":1}`,
	}
	for method, want := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/students", strings.NewReader(`{"1": {"age": 1}}`)))
		if got := strings.TrimSpace(rr.Body.String()); got != want {
			t.Fatalf("%s body = %s, want %s", method, got, want)
		}
	}
}

func TestInsertFailureIsServerError(t *testing.T) {
	svc := &fakeRows{mutateErr: errors.New(`column "nmae" does not exist`)}
	h := NewHandler(loadConfig(t, nil), Dependencies{Rows: svc})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/students", strings.NewReader(`{"1": {"nmae": "x"}}`)))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeObject(t, rr)
	ctx, _ := body["context"].(map[string]any)
	if !strings.Contains(ctx["details"].(string), "nmae") {
		t.Fatalf("body = %v", body)
	}
}

func TestExportEndpoint(t *testing.T) {
	cfg := loadConfig(t, nil)

	rr := httptest.NewRecorder()
	NewHandler(cfg, Dependencies{}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/export", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("unconfigured status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	NewHandler(cfg, Dependencies{Exporter: fakeExporter{err: errors.New("bucket missing")}}).
		ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/export", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("failed status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	NewHandler(cfg, Dependencies{Exporter: fakeExporter{summary: export.Summary{Table: "students", ObjectKey: "students/x.parquet", RowCount: 3}}}).
		ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/export", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeObject(t, rr)
	if body["object_key"] != "students/x.parquet" || body["row_count"] != float64(3) {
		t.Fatalf("body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("tableapi_http_requests_total")) {
		t.Fatal("metrics output missing request counter")
	}
}

type fakeRows struct {
	list      []rows.Row
	getErr    error
	getCalls  int
	mutateErr error
	result    resource.BatchResult
	entries   int
	deleted   []string
}

func (f *fakeRows) List(context.Context) ([]rows.Row, error) {
	if f.list == nil {
		return []rows.Row{}, nil
	}
	return f.list, nil
}

func (f *fakeRows) Get(_ context.Context, rawID string) ([]rows.Row, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return []rows.Row{{{Column: "id", Value: rawID}}}, nil
}

func (f *fakeRows) Insert(_ context.Context, entries []resource.InsertEntry) (resource.BatchResult, error) {
	f.entries += len(entries)
	return f.result, f.mutateErr
}

func (f *fakeRows) Update(_ context.Context, entries []resource.UpdateEntry) (resource.BatchResult, error) {
	f.entries += len(entries)
	return f.result, f.mutateErr
}

func (f *fakeRows) Delete(_ context.Context, ids []string) (resource.BatchResult, error) {
	f.deleted = append(f.deleted, ids...)
	return f.result, f.mutateErr
}

type fakeExporter struct {
	summary export.Summary
	err     error
}

func (f fakeExporter) Export(context.Context) (export.Summary, error) {
	return f.summary, f.err
}

func loadConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	if values == nil {
		values = map[string]string{}
	}
	cfg, err := config.Load("tableapi-server", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func decodeObject(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v, body=%s", err, rr.Body.String())
	}
	return body
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
