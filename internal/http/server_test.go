package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budsjett/internal/core"
	"budsjett/internal/extractor"
	"budsjett/internal/services"
	"budsjett/internal/storage"
)

type fakeExtractorService struct {
	raw        []core.RawTransaction
	extractErr error

	infos     []extractor.Info
	listErr   error
	listCalls int
}

func (f *fakeExtractorService) Extract(ctx context.Context, filename string, file io.Reader, extractorID string) ([]core.RawTransaction, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.raw, nil
}

func (f *fakeExtractorService) ListExtractors(ctx context.Context) ([]extractor.Info, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.infos, nil
}

func newTestServer(t *testing.T) (*Server, *fakeExtractorService) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	fake := &fakeExtractorService{}
	svc := services.NewImportService(repo, fake, nil)
	srv := NewServer(":0", svc, fake)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, fake
}

func doRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func authedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("X-User-ID", "alice")
	if body != nil && method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func importRequest(t *testing.T, month string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "statement.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("csv data"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("extractor", "dnb"))
	if month != "" {
		require.NoError(t, mw.WriteField("month", month))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", "alice")
	return req
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListExtractorsCaches(t *testing.T) {
	srv, fake := newTestServer(t)
	fake.infos = []extractor.Info{{ID: "dnb", Description: "DNB CSV", SupportedFormats: []string{"csv"}}}

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/extractors", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body extractorsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Extractors, 1)
	assert.Equal(t, "dnb", body.Extractors[0].ID)

	doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/extractors", nil))
	assert.Equal(t, 1, fake.listCalls)
}

func TestListExtractorsUpstreamDown(t *testing.T) {
	srv, fake := newTestServer(t)
	fake.listErr = &extractor.ExtractionError{Reason: "extraction service unavailable"}

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/extractors", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestImport(t *testing.T) {
	srv, fake := newTestServer(t)
	fake.raw = []core.RawTransaction{
		{Date: "2026-03-02", Title: "Coffee", Amount: core.Money{Cents: -4500}},
		{Date: "2026-02-27", Title: "Old", Amount: core.Money{Cents: -100}},
	}

	rec := doRequest(srv, importRequest(t, "202603"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"staged":1,"duplicates":0,"filteredByMonth":1}`, rec.Body.String())
}

func TestImportValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, importRequest(t, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, importRequest(t, "2026-03"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := importRequest(t, "202603")
	req.Header.Del("X-User-ID")
	rec = doRequest(srv, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestImportExtractionFailure(t *testing.T) {
	srv, fake := newTestServer(t)
	fake.extractErr = &extractor.ExtractionError{Reason: "unknown parser: foo"}

	rec := doRequest(srv, importRequest(t, "202603"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown parser")
}

func stageOne(t *testing.T, srv *Server, fake *fakeExtractorService) core.StagedTransaction {
	t.Helper()
	fake.raw = []core.RawTransaction{
		{Date: "2026-03-02", Title: "Dinner", Amount: core.Money{Cents: -4500}},
	}
	rec := doRequest(srv, importRequest(t, "202603"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(srv, authedRequest(http.MethodGet, "/api/staged?month=202603", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var staged []core.StagedTransaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &staged))
	require.Len(t, staged, 1)
	return staged[0]
}

func TestListStagedRequiresMonth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, authedRequest(http.MethodGet, "/api/staged", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStaged(t *testing.T) {
	srv, fake := newTestServer(t)
	row := stageOne(t, srv, fake)

	body := strings.NewReader(`{"title":"Dinner with Kari","category":"food"}`)
	rec := doRequest(srv, authedRequest(http.MethodPatch, "/api/staged/"+row.ID, body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated core.StagedTransaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Dinner with Kari", updated.Title)
	require.NotNil(t, updated.Category)
	assert.Equal(t, "food", *updated.Category)

	// Null clears the category.
	rec = doRequest(srv, authedRequest(http.MethodPatch, "/api/staged/"+row.ID, strings.NewReader(`{"category":null}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	updated = core.StagedTransaction{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Nil(t, updated.Category)
}

func TestUpdateStagedSettlementViolation(t *testing.T) {
	srv, fake := newTestServer(t)
	row := stageOne(t, srv, fake)

	body := strings.NewReader(`{"collectToMe":3000,"collectFromMe":2000}`)
	rec := doRequest(srv, authedRequest(http.MethodPatch, "/api/staged/"+row.ID, body))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpdateStagedNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, authedRequest(http.MethodPatch, "/api/staged/nope", strings.NewReader(`{"title":"x"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateStagedRejectsFractionalAmount(t *testing.T) {
	srv, fake := newTestServer(t)
	row := stageOne(t, srv, fake)

	rec := doRequest(srv, authedRequest(http.MethodPatch, "/api/staged/"+row.ID, strings.NewReader(`{"amount":45.5}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteStaged(t *testing.T) {
	srv, fake := newTestServer(t)
	row := stageOne(t, srv, fake)

	rec := doRequest(srv, authedRequest(http.MethodDelete, "/api/staged/"+row.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(srv, authedRequest(http.MethodDelete, "/api/staged/"+row.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulkCategorize(t *testing.T) {
	srv, fake := newTestServer(t)
	row := stageOne(t, srv, fake)

	body := strings.NewReader(`{"ids":["` + row.ID + `"],"category":"food"}`)
	rec := doRequest(srv, authedRequest(http.MethodPost, "/api/staged/categorize", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"updated":1}`, rec.Body.String())

	// Unknown ids roll the batch back.
	body = strings.NewReader(`{"ids":["` + row.ID + `","nope"],"category":"other"}`)
	rec = doRequest(srv, authedRequest(http.MethodPost, "/api/staged/categorize", body))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommitAndLedger(t *testing.T) {
	srv, fake := newTestServer(t)
	stageOne(t, srv, fake)

	rec := doRequest(srv, authedRequest(http.MethodPost, "/api/commit", strings.NewReader(`{"month":"202603"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"committed":1}`, rec.Body.String())

	rec = doRequest(srv, authedRequest(http.MethodGet, "/api/staged?month=202603", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = doRequest(srv, authedRequest(http.MethodGet, "/api/ledger?month=202603", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var ledger []core.LedgerEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ledger))
	require.Len(t, ledger, 1)
	assert.Equal(t, "Dinner", ledger[0].Title)
	assert.Equal(t, core.OriginImported, ledger[0].Origin)
}
