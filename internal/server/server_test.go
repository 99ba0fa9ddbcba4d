package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvallam/MedVaultAPI/internal/api"
	"github.com/kvallam/MedVaultAPI/internal/capability/blobStore"
	"github.com/kvallam/MedVaultAPI/internal/capability/textExtract"
	"github.com/kvallam/MedVaultAPI/internal/data/leaseStore"
	"github.com/kvallam/MedVaultAPI/internal/data/metaStore"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/internal/handlers"
	"github.com/kvallam/MedVaultAPI/internal/ingest"
	"github.com/kvallam/MedVaultAPI/internal/insight"
	"github.com/kvallam/MedVaultAPI/internal/middleware"
	"github.com/kvallam/MedVaultAPI/internal/orchestrator"
	"github.com/kvallam/MedVaultAPI/internal/pipeline_test"
	"github.com/kvallam/MedVaultAPI/internal/queue"
	"github.com/kvallam/MedVaultAPI/internal/rag/embedding/mock"
	"github.com/kvallam/MedVaultAPI/internal/rag/vectorStore/memoryStore"
	"github.com/kvallam/MedVaultAPI/internal/retrieval"
	"github.com/kvallam/MedVaultAPI/internal/retry"
	"github.com/kvallam/MedVaultAPI/internal/worker"
)

const testAuthToken = "test-token"

type testEnv struct {
	server *httptest.Server
	meta   *metaStore.Store
	llm    *pipeline_test.MockLLM
}

// newTestEnv assembles the full pipeline behind a real router: sqlite
// metadata, disk blobs, in-memory chunks and lease, a fixed-vector embedder,
// and one background worker.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	meta, err := metaStore.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	require.NoError(t, meta.CreatePatient(context.Background(), recordModel.Patient{
		Id: "pat-1", UserId: "user-pat", MedicalId: "MRN-1", FullName: "Pat One",
	}))
	require.NoError(t, meta.CreatePatient(context.Background(), recordModel.Patient{
		Id: "pat-2", UserId: "user-other", MedicalId: "MRN-2", FullName: "Pat Two",
	}))

	// Empty base URL keeps signed URLs relative so the test server can serve
	// them regardless of its random port.
	blobs, err := blobStore.NewDiskStore(t.TempDir(), "", "e2e-sign-key")
	require.NoError(t, err)

	fixed := []float32{1, 0, 0, 0}
	embedder := mock.NewEmbedder()
	embedder.EmbedQueryFunc = func(ctx context.Context, text string) ([]float32, error) {
		return fixed, nil
	}
	embedder.EmbedChunksFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = fixed
		}
		return vectors, nil
	}

	chunks := memoryStore.NewStore()
	llm := &pipeline_test.MockLLM{}
	taskQueue := queue.NewChannelQueue(16)

	insightService, err := insight.NewService(meta, meta, blobs, textExtract.NewRouter(nil),
		embedder, chunks, leaseStore.NewMemoryLease())
	require.NoError(t, err)
	t.Cleanup(insightService.Release)

	pool := worker.NewPool(taskQueue, insightService, retry.Policy{
		MaxAttempts: 2,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
	}, meta)
	pool.Start(1)
	t.Cleanup(func() {
		taskQueue.Close()
		pool.Stop()
	})

	orch := orchestrator.New(taskQueue, meta, meta)
	ingestService := ingest.NewService(meta, meta, blobs, orch)
	retrievalService := retrieval.NewService(meta, meta, meta, embedder, chunks, llm)

	handler := handlers.NewHandler(ingestService, retrievalService, orch, meta, meta, meta, blobs, chunks)
	router := NewRouter(handler, middleware.NewChain(testAuthToken))

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, meta: meta, llm: llm}
}

func (e *testEnv) do(t *testing.T, method string, path string, body io.Reader,
	contentType string, userId string, role string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAuthToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userId != "" {
		req.Header.Set("X-User-Id", userId)
		req.Header.Set("X-Role", role)
	}

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func multipartUpload(t *testing.T, patientId string, title string, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("patient_id", patientId))
	require.NoError(t, writer.WriteField("title", title))

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="document"; filename="report.txt"`)
	header.Set("Content-Type", "text/plain")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return &buf, writer.FormDataContentType()
}

func TestRecordLifecycle(t *testing.T) {
	env := newTestEnv(t)
	document := "Hemoglobin 13.5 g/dL. Cholesterol within normal range."

	body, contentType := multipartUpload(t, "pat-1", "Blood Panel", document)
	resp := env.do(t, http.MethodPost, "/records/upload", body, contentType, "user-pat", "patient")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var uploaded api.UploadResponse
	decodeInto(t, resp, &uploaded)
	assert.Equal(t, "uploaded", uploaded.Status)
	assert.True(t, uploaded.Scheduled)

	require.Eventually(t, func() bool {
		record, err := env.meta.GetRecord(context.Background(), uploaded.RecordId)
		return err == nil && record.Status == recordModel.StatusProcessed
	}, 5*time.Second, 20*time.Millisecond, "record never reached processed")

	// Owner finds the record; a different patient's scope is empty.
	searchBody, _ := json.Marshal(api.SearchRequest{Query: "hemoglobin"})
	resp = env.do(t, http.MethodPost, "/ai/search", bytes.NewReader(searchBody), "application/json", "user-pat", "patient")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found api.SearchResponse
	decodeInto(t, resp, &found)
	require.Equal(t, 1, found.Count)
	assert.Equal(t, uploaded.RecordId, found.Hits[0].RecordId)
	assert.Equal(t, "Blood Panel", found.Hits[0].Title)

	resp = env.do(t, http.MethodPost, "/ai/search", bytes.NewReader(searchBody), "application/json", "user-other", "patient")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var foreign api.SearchResponse
	decodeInto(t, resp, &foreign)
	assert.Equal(t, 0, foreign.Count)

	// Questions answer from the record's own chunks; outsiders get denied.
	askBody, _ := json.Marshal(api.AskRequest{RecordId: uploaded.RecordId, Question: "What is the hemoglobin value?"})
	resp = env.do(t, http.MethodPost, "/ai/ask", bytes.NewReader(askBody), "application/json", "user-pat", "patient")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var answer api.AskResponse
	decodeInto(t, resp, &answer)
	assert.Equal(t, "mocked answer", answer.Answer)
	assert.Equal(t, 1, env.llm.Calls())

	resp = env.do(t, http.MethodPost, "/ai/ask", bytes.NewReader(askBody), "application/json", "user-other", "patient")
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Signed URL downloads work without auth headers.
	resp = env.do(t, http.MethodGet, "/records/"+uploaded.RecordId+"/url", nil, "", "user-pat", "patient")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var signed api.RecordURLResponse
	decodeInto(t, resp, &signed)

	fileResp, err := env.server.Client().Get(env.server.URL + signed.URL)
	require.NoError(t, err)
	defer fileResp.Body.Close()
	require.Equal(t, http.StatusOK, fileResp.StatusCode)
	assert.Equal(t, "text/plain", fileResp.Header.Get("Content-Type"))
	downloaded, err := io.ReadAll(fileResp.Body)
	require.NoError(t, err)
	assert.Equal(t, document, string(downloaded))

	// Deletion is manager-only and cascades.
	resp = env.do(t, http.MethodDelete, "/records/"+uploaded.RecordId, nil, "", "user-pat", "patient")
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/records/"+uploaded.RecordId, nil, "", "mgr-1", "hospital_manager")
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = env.meta.GetRecord(context.Background(), uploaded.RecordId)
	assert.True(t, errors.Is(err, faults.ErrNotFound))
}

func TestRequestRejections(t *testing.T) {
	env := newTestEnv(t)
	searchBody, _ := json.Marshal(api.SearchRequest{Query: "anything"})

	tests := []struct {
		name     string
		token    string
		userId   string
		role     string
		wantCode int
	}{
		{"missing bearer token", "", "user-pat", "patient", http.StatusUnauthorized},
		{"wrong bearer token", "nope", "user-pat", "patient", http.StatusUnauthorized},
		{"missing identity headers", testAuthToken, "", "", http.StatusUnauthorized},
		{"unknown role", testAuthToken, "user-pat", "superuser", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, env.server.URL+"/ai/search", bytes.NewReader(searchBody))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			if tt.userId != "" {
				req.Header.Set("X-User-Id", tt.userId)
				req.Header.Set("X-Role", tt.role)
			}

			resp, err := env.server.Client().Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))
		})
	}
}

func TestReprocessRequiresRecordAccess(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartUpload(t, "pat-1", "Discharge Summary", "Discharged in stable condition.")
	resp := env.do(t, http.MethodPost, "/records/upload", body, contentType, "user-pat", "patient")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var uploaded api.UploadResponse
	decodeInto(t, resp, &uploaded)

	// An unrelated patient gets the same 403 whether or not the id exists, so
	// the endpoint cannot be used to enumerate record ids.
	resp = env.do(t, http.MethodPost, "/ai/process/"+uploaded.RecordId, nil, "", "user-other", "patient")
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/ai/process/no-such-record", nil, "", "user-other", "patient")
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/ai/process/"+uploaded.RecordId, nil, "", "user-pat", "patient")
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestUploadRejectsUnsupportedMime(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("patient_id", "pat-1"))
	require.NoError(t, writer.WriteField("title", "Archive"))
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="document"; filename="records.zip"`)
	header.Set("Content-Type", "application/zip")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("not a medical record"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp := env.do(t, http.MethodPost, "/records/upload", &buf, writer.FormDataContentType(), "user-pat", "patient")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestAgentStatusReportsStages(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/ai/agents/status", nil, "", "adm-1", "admin")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status api.StatusResponse
	decodeInto(t, resp, &status)
	assert.Equal(t, 0, status.QueueDepth)
}
