package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/talkimport/internal/config"
	"github.com/JonMunkholm/talkimport/internal/core"
	"github.com/JonMunkholm/talkimport/internal/database/memdb"
	"github.com/google/uuid"
)

const sampleCSV = "title,author,date,views,likes,link\n" +
	"Do schools kill creativity?,Ken Robinson,February 2006,\"72,000,000\",2100000,https://ted.com/talks/1\n" +
	"Broken row,Nobody,someday,1,1,https://ted.com/talks/2\n"

type testEnv struct {
	store  *memdb.Store
	server *Server
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := &config.Config{}
	cfg.Import.MaxFileSize = 1 << 20
	cfg.Import.UploadDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	store := memdb.New()
	runner := core.NewRunner(store, core.NewBatchWriter(store, core.NewTalkValidator(time.Now)), core.RunnerConfig{BatchSize: 10})
	intake := core.NewIntake(store, runner, core.IntakeConfig{UploadDir: cfg.Import.UploadDir, MaxFileSize: cfg.Import.MaxFileSize})
	service := core.NewService(store, store, intake, core.NewUploadLimiter(2, time.Second))

	return &testEnv{store: store, server: NewServer(service, nil, cfg)}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, fileName, contentType, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(body))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) core.ImportJob {
	t.Helper()
	var job core.ImportJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v\n%s", err, rec.Body.String())
	}
	return job
}

func TestUpload_CreatesAndImports(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(uploadRequest(t, "talks.csv", "text/csv", sampleCSV))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	job := decodeJob(t, rec)
	if job.Status != core.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", job.Status)
	}
	if job.ProcessedCount != 2 || job.SuccessfulCount != 1 || job.FailedCount != 1 {
		t.Errorf("counters = %+v", job.Progress())
	}
	if !strings.Contains(rec.Body.String(), `"fileHash"`) {
		t.Errorf("job JSON missing camelCase fields: %s", rec.Body.String())
	}

	again := env.do(uploadRequest(t, "renamed.csv", "text/csv", sampleCSV))
	if again.Code != http.StatusOK {
		t.Fatalf("duplicate upload status = %d", again.Code)
	}
	if dup := decodeJob(t, again); dup.ID != job.ID {
		t.Errorf("duplicate upload returned job %s, want %s", dup.ID, job.ID)
	}
	if n := len(env.store.Talks()); n != 1 {
		t.Errorf("stored talks = %d, want 1", n)
	}
}

func TestUpload_Rejections(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Import.MaxFileSize = 64 })

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
		wantErr  string
	}{
		{"not csv", uploadRequest(t, "talks.txt", "text/plain", sampleCSV), http.StatusBadRequest, "FILE002"},
		{"empty", uploadRequest(t, "talks.csv", "text/csv", ""), http.StatusBadRequest, "FILE004"},
		{"too large", uploadRequest(t, "talks.csv", "text/csv", sampleCSV), http.StatusRequestEntityTooLarge, "FILE001"},
		{"no file", httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader("")), http.StatusBadRequest, "FILE003"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(tt.req)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			var resp ErrorResponse
			json.Unmarshal(rec.Body.Bytes(), &resp)
			if resp.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantErr)
			}
		})
	}
}

func TestUpload_TextCSVContentTypeWithoutExtension(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(uploadRequest(t, "export", "text/csv; charset=utf-8", sampleCSV))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestGetAndListJobs(t *testing.T) {
	env := newTestEnv(t, nil)
	job := decodeJob(t, env.do(uploadRequest(t, "talks.csv", "text/csv", sampleCSV)))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/imports/"+job.ID.String(), nil))
	if rec.Code != http.StatusOK || decodeJob(t, rec).ID != job.ID {
		t.Errorf("get: status %d body %s", rec.Code, rec.Body.String())
	}

	for _, path := range []string{"/api/imports/" + uuid.NewString(), "/api/imports/not-a-uuid"} {
		if rec := env.do(httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, rec.Code)
		}
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/imports?limit=5", nil))
	var list jobListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 || list.Jobs[0].ID != job.ID {
		t.Errorf("list = %+v", list)
	}
}

func TestStartJob_ResumesFailedJob(t *testing.T) {
	env := newTestEnv(t, nil)
	job := decodeJob(t, env.do(uploadRequest(t, "talks.csv", "text/csv", sampleCSV)))

	// Force the job back to FAILED with no progress to exercise a manual restart.
	stored, _ := env.store.Get(context.Background(), job.ID)
	stored.Status = core.StatusFailed
	stored.SetProgress(core.Progress{})
	if err := env.store.Update(context.Background(), stored); err != nil {
		t.Fatal(err)
	}

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/imports/"+job.ID.String()+"/start", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	restarted := decodeJob(t, rec)
	if restarted.Status != core.StatusCompleted || restarted.SkippedCount != 1 {
		t.Errorf("restarted job = %s %+v", restarted.Status, restarted.Progress())
	}
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	})

	if rec := env.do(httptest.NewRequest(http.MethodGet, "/api/imports", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/imports", nil)
	req.Header.Set("X-API-Key", "secret")
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Errorf("valid key = %d, want 200", rec.Code)
	}

	if rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200 without a key", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("get: %w", core.ErrJobNotFound), http.StatusNotFound},
		{fmt.Errorf("update: %w", core.ErrVersionConflict), http.StatusConflict},
		{fmt.Errorf("start: %w", core.ErrQueueFull), http.StatusServiceUnavailable},
		{core.ErrDispatcherClosed, http.StatusServiceUnavailable},
		{core.ErrTooManyUploads, http.StatusTooManyRequests},
		{&core.MissingColumnsError{Columns: []string{"link"}}, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
