package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/claimdesk/claimdesk/internal/api"
	"github.com/claimdesk/claimdesk/internal/config"
	"github.com/claimdesk/claimdesk/internal/queue"
	"github.com/claimdesk/claimdesk/internal/repository"
	"github.com/claimdesk/claimdesk/internal/service"
)

type stubObjects struct{}

func (stubObjects) Upload(_ context.Context, _ string, r io.Reader, _ int64, _ string) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

func (stubObjects) PresignURL(_ context.Context, name string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://files.test/%s?expires=%s", name, ttl), nil
}

type stubQueue struct{ payloads []queue.ExtractPayload }

func (q *stubQueue) EnqueueExtract(_ context.Context, p queue.ExtractPayload) error {
	q.payloads = append(q.payloads, p)
	return nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Address:     ":0",
		MaxUploadMB: 1,
	}
	store := repository.NewMemoryStore()
	svc := service.New(store, stubObjects{}, &stubQueue{}, service.Limits{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		UploadURLTTL:   7 * 24 * time.Hour,
		FileURLTTL:     time.Hour,
	}, zap.NewNop().Sugar())
	return api.New(cfg, svc, zap.NewNop().Sugar(), nil).Router()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func createClaim(t *testing.T, h http.Handler, body map[string]any) map[string]string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/report/create", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[map[string]string](t, rec)
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateIgnoresCallerStatusAndFoldsBrand(t *testing.T) {
	h := newTestServer(t)
	created := createClaim(t, h, map[string]any{
		"status":             "submitted",
		"incident_date":      "5.3.2024",
		"damage_description": "parking damage",
		"vehicle":            map[string]any{"brand": "BMW", "model": "3er"},
	})
	require.NotEmpty(t, created["id"])
	require.NotEmpty(t, created["publicId"])
	require.NotEmpty(t, created["editToken"])

	rec := doJSON(t, h, http.MethodGet, "/report/get?publicId="+created["publicId"], nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	report := body["report"].(map[string]any)
	assert.Equal(t, "draft", report["status"], "caller-supplied status must be ignored")
	assert.Equal(t, "2024-03-05", report["incidentDate"])
	vehicle := report["vehicle"].(map[string]any)
	assert.Equal(t, "BMW", vehicle["make"], "brand synonym folds into make")
	files := body["files"].([]any)
	assert.Empty(t, files)
}

func TestCreateRejectsInvalidEmail(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodPost, "/report/create", map[string]any{
		"policyholder": map[string]any{"name": "Max", "email": "not-an-email"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNotFound(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/report/get?publicId=unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	payload := decode[map[string]string](t, rec)
	assert.Equal(t, "not_found", payload["hint"])
}

func TestUpdateAuthorizationAndResponse(t *testing.T) {
	h := newTestServer(t)
	created := createClaim(t, h, map[string]any{"damage_description": "before"})

	// Missing required fields.
	rec := doJSON(t, h, http.MethodPost, "/report/update", map[string]any{"id": created["id"]})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown id: 404 before the token is even looked at.
	rec = doJSON(t, h, http.MethodPost, "/report/update", map[string]any{
		"id": "does-not-exist", "editToken": "whatever",
		"patch": map[string]any{"damage_description": "x"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Wrong token: 403.
	rec = doJSON(t, h, http.MethodPost, "/report/update", map[string]any{
		"id": created["id"], "editToken": "wrong",
		"patch": map[string]any{"damage_description": "x"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Correct token: 200 with the refreshed summary.
	rec = doJSON(t, h, http.MethodPost, "/report/update", map[string]any{
		"id": created["id"], "editToken": created["editToken"],
		"patch": map[string]any{"damage_description": "after", "status": "submitted"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, created["id"], resp["id"])
	assert.Equal(t, created["publicId"], resp["publicId"])
	assert.Equal(t, "submitted", resp["status"])
	assert.NotEmpty(t, resp["updatedAt"])

	// Reverse transition: 400.
	rec = doJSON(t, h, http.MethodPost, "/report/update", map[string]any{
		"id": created["id"], "editToken": created["editToken"],
		"patch": map[string]any{"status": "draft"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListFiltersAndHidesEditTokens(t *testing.T) {
	h := newTestServer(t)
	first := createClaim(t, h, map[string]any{"damage_description": "one"})
	createClaim(t, h, map[string]any{"damage_description": "two"})

	rec := doJSON(t, h, http.MethodPost, "/report/update", map[string]any{
		"id": first["id"], "editToken": first["editToken"],
		"patch": map[string]any{"status": "submitted"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/report/list?status=submitted", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), body["total"])
	reports := body["reports"].([]any)
	require.Len(t, reports, 1)
	assert.NotContains(t, rec.Body.String(), first["editToken"], "edit tokens must never appear in list output")

	rec = doJSON(t, h, http.MethodGet, "/report/list?limit=1&offset=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, float64(2), body["total"])
	assert.Len(t, body["reports"].([]any), 1)
}

func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestUploadRequiresMultipart(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodPost, "/report/upload", map[string]any{"id": "x"})
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUploadTooLarge(t *testing.T) {
	h := newTestServer(t)
	created := createClaim(t, h, nil)

	big := bytes.Repeat([]byte("x"), int(3<<19)) // 1.5 MiB against a 1 MiB limit
	buf, ct := multipartBody(t, map[string]string{
		"id": created["id"], "editToken": created["editToken"],
	}, "big.jpg", big)
	req := httptest.NewRequest(http.MethodPost, "/report/upload", buf)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())

	getRec := doJSON(t, h, http.MethodGet, "/report/get?publicId="+created["publicId"], nil)
	body := decode[map[string]any](t, getRec)
	assert.Empty(t, body["files"].([]any), "no attachment row after a rejected upload")
}

func TestUploadAndFileURL(t *testing.T) {
	h := newTestServer(t)
	created := createClaim(t, h, nil)

	buf, ct := multipartBody(t, map[string]string{
		"id": created["id"], "editToken": created["editToken"],
	}, "damage.jpg", []byte("jpegbytes"))
	req := httptest.NewRequest(http.MethodPost, "/report/upload", buf)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	path := body["path"].(string)
	assert.True(t, strings.HasPrefix(path, created["publicId"]+"/"))
	assert.NotEmpty(t, body["url"])

	getRec := doJSON(t, h, http.MethodGet, "/report/get?publicId="+created["publicId"], nil)
	getBody := decode[map[string]any](t, getRec)
	require.Len(t, getBody["files"].([]any), 1)

	urlRec := doJSON(t, h, http.MethodGet, "/report/file-url?path="+path, nil)
	require.Equal(t, http.StatusOK, urlRec.Code)
	urlBody := decode[map[string]string](t, urlRec)
	assert.NotEmpty(t, urlBody["url"])

	missing := doJSON(t, h, http.MethodGet, "/report/file-url", nil)
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestUploadWrongTokenAndUnknownClaim(t *testing.T) {
	h := newTestServer(t)
	created := createClaim(t, h, nil)

	buf, ct := multipartBody(t, map[string]string{
		"id": created["id"], "editToken": "wrong",
	}, "a.jpg", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/report/upload", buf)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	buf, ct = multipartBody(t, map[string]string{
		"id": "missing", "editToken": "whatever",
	}, "a.jpg", []byte("x"))
	req = httptest.NewRequest(http.MethodPost, "/report/upload", buf)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
