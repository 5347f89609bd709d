package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmercadier/amortization-extractor/internal/common"
	"github.com/jmercadier/amortization-extractor/internal/export"
	"github.com/jmercadier/amortization-extractor/internal/extract"
	"github.com/jmercadier/amortization-extractor/internal/resilience"
)

type fixedDispatcher struct {
	body string
	err  error
}

func (d *fixedDispatcher) Dispatch(context.Context, extract.DispatchRequest) (extract.RawResponse, error) {
	if d.err != nil {
		return extract.RawResponse{}, d.err
	}
	return extract.RawResponse{Body: []byte(d.body), ContentType: "application/json"}, nil
}

func newTestServer(t *testing.T, d extract.Dispatcher) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := extract.NewOrchestrator(d, extract.Config{
		Retry: resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond},
	}, logger)
	require.NoError(t, err)

	handlers := NewHandlers(orch, export.NewService(logger), nil, nil, 0, 0, logger)
	return NewServer(common.ServerConfig{Addr: ":0"}, handlers, logger)
}

func uploadRequest(t *testing.T, target, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const tableBody = `{"content": "[{\"montant\":\"850,00\",\"interet\":\"200,00\",\"assurance\":\"50,00\"}]"}`

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, &fixedDispatcher{body: tableBody})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Extract_OK(t *testing.T) {
	srv := newTestServer(t, &fixedDispatcher{body: tableBody})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, uploadRequest(t, "/extract", "loan.pdf", []byte("pdf")))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var resp struct {
		Filename string `json:"filename"`
		RowCount int    `json:"row_count"`
		Attempts int    `json:"attempts"`
		Totals   struct {
			Payment   string `json:"payment"`
			Interest  string `json:"interest"`
			Insurance string `json:"insurance"`
		} `json:"totals"`
		Rows []struct {
			Payment string `json:"payment"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "loan.pdf", resp.Filename)
	assert.Equal(t, 1, resp.RowCount)
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, "850.00", resp.Totals.Payment)
	assert.Equal(t, "200.00", resp.Totals.Interest)
	assert.Equal(t, "50.00", resp.Totals.Insurance)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "850.00", resp.Rows[0].Payment)
}

func TestServer_Extract_MissingFilePart(t *testing.T) {
	srv := newTestServer(t, &fixedDispatcher{body: tableBody})

	req := httptest.NewRequest(http.MethodPost, "/extract", bytes.NewReader([]byte("not multipart")))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_Extract_MalformedContent(t *testing.T) {
	srv := newTestServer(t, &fixedDispatcher{body: `{"text": "not json"}`})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, uploadRequest(t, "/extract", "loan.pdf", []byte("pdf")))

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var resp struct {
		Kind   string `json:"kind"`
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, string(common.KindMalformedContent), resp.Kind)
	assert.NotEmpty(t, resp.Detail)
}

func TestServer_Extract_UpstreamDown(t *testing.T) {
	srv := newTestServer(t, &fixedDispatcher{err: errors.New("connection refused")})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, uploadRequest(t, "/extract", "loan.pdf", []byte("pdf")))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	var resp struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, string(common.KindTransport), resp.Kind)
}

func TestServer_Export_CSV(t *testing.T) {
	srv := newTestServer(t, &fixedDispatcher{body: tableBody})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, uploadRequest(t, "/export?format=csv", "loan.pdf", []byte("pdf")))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), `filename="loan.csv"`)

	records, err := csv.NewReader(bytes.NewReader(rr.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "850.00", records[1][2])
}

func TestServer_Export_BadFormat(t *testing.T) {
	srv := newTestServer(t, &fixedDispatcher{body: tableBody})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, uploadRequest(t, "/export?format=doc", "loan.pdf", []byte("pdf")))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_JobsWithoutStore(t *testing.T) {
	srv := newTestServer(t, &fixedDispatcher{body: tableBody})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHTTPStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, httpStatusFor(common.KindTimeout))
	assert.Equal(t, http.StatusBadGateway, httpStatusFor(common.KindTransport))
	assert.Equal(t, statusClientClosedRequest, httpStatusFor(common.KindCancelled))
	assert.Equal(t, http.StatusUnprocessableEntity, httpStatusFor(common.KindValidation))
	assert.Equal(t, http.StatusUnprocessableEntity, httpStatusFor(common.KindNoContent))
}
