package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/artifact"
	"github.com/dativo-io/veil/internal/classify"
	"github.com/dativo-io/veil/internal/pipeline"
	"github.com/dativo-io/veil/internal/testutil"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	gw := testutil.NewScriptedGateway(map[string]classify.Record{
		"name":    testutil.Sensitive(classify.CategoryIdentifier, "full names"),
		"cep":     testutil.Sensitive(classify.CategoryQuasiIdentifier, "postal codes"),
		"salario": testutil.Sensitive(classify.CategoryFinancial, "salaries"),
	})
	return New(pipeline.New(gw), opts...)
}

func multipartCSV(t *testing.T, csv string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "payroll.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(csv))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
}

func TestAnonymizeEndpoint(t *testing.T) {
	srv := newTestServer(t)

	csv := "name,cep,salario\nAlice,01310-100,5000\nBob,04567-000,7000\n"
	body, contentType := multipartCSV(t, csv, map[string]string{"epsilon": "1.0"})

	req := httptest.NewRequest(http.MethodPost, "/v1/anonymize", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "cep,salario", lines[0], "identifier column is gone from the output")
	assert.True(t, strings.HasPrefix(lines[1], "01310***,"))
	assert.True(t, strings.HasPrefix(lines[2], "04567***,"))
	assert.NotContains(t, rec.Body.String(), "Alice")
	assert.False(t, strings.HasSuffix(lines[1], ",5000"), "deferred numeric column must be noised")
}

func TestAnonymizeMissingFile(t *testing.T) {
	srv := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("epsilon", "1.0"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/anonymize", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnonymizeBadCSV(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartCSV(t, "a,b\n1\n", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/anonymize", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnonymizeRecordsRun(t *testing.T) {
	store, err := artifact.NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	srv := newTestServer(t, WithRunStore(store))

	body, contentType := multipartCSV(t, "name,salario\nAlice,5000\n", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/anonymize", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	runs, err := store.List(req.Context(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "payroll.csv", runs[0].Input)
	assert.Equal(t, []string{"salario"}, runs[0].Deferred)
	assert.NotNil(t, runs[0].NoisedAt)
}

func TestRunsEndpoint(t *testing.T) {
	store, err := artifact.NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	srv := newTestServer(t, WithRunStore(store))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Runs []artifact.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Empty(t, payload.Runs)
}

func TestRunsEndpointWithoutStore(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
