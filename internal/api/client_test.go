package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"macroblock/internal/api"
	"macroblock/internal/gateway"
	"macroblock/internal/media"
)

func TestClientStatusCarriesBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: 4242})
	}))
	defer server.Close()

	client := api.NewClient(server.URL, api.WithToken("sekrit"))
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status.Running || status.PID != 4242 {
		t.Fatalf("unexpected status %+v", status)
	}
	if gotAuth != "Bearer sekrit" {
		t.Fatalf("Authorization = %q, want bearer token", gotAuth)
	}
}

func TestClientDetectSendsMultipartUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/detect/image" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "photo.png" || string(data) != "payload" {
			t.Fatalf("got upload %q %q", header.Filename, data)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.Report{AnalysisID: "abc", MediaKind: "image", Filename: "photo.png"})
	}))
	defer server.Close()

	client := api.NewClient(server.URL)
	report, err := client.Detect(context.Background(), media.KindImage, "photo.png", []byte("payload"))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if report.AnalysisID != "abc" {
		t.Fatalf("AnalysisID = %q", report.AnalysisID)
	}
}

func TestClientDetectRejectsUnknownKind(t *testing.T) {
	client := api.NewClient("127.0.0.1:0")
	if _, err := client.Detect(context.Background(), media.KindUnknown, "blob.bin", []byte("x")); err == nil {
		t.Fatal("expected error for unknown media kind")
	}
}

func TestClientDecodesErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "uploaded file is empty"})
	}))
	defer server.Close()

	client := api.NewClient(server.URL)
	_, err := client.Detectors(context.Background())
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusBadRequest || statusErr.Message != "uploaded file is empty" {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestClientHistoryLimitQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "7" {
			t.Fatalf("limit query = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.HistoryResponse{})
	}))
	defer server.Close()

	client := api.NewClient(server.URL)
	if _, err := client.History(context.Background(), 7); err != nil {
		t.Fatalf("History() error = %v", err)
	}
}

func TestClientBatchPreservesUploads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		headers := r.MultipartForm.File["file"]
		if len(headers) != 2 || headers[0].Filename != "a.png" || headers[1].Filename != "b.png" {
			t.Fatalf("unexpected upload set %+v", headers)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.BatchResponse{Results: []api.BatchEntry{{Filename: "a.png"}, {Filename: "b.png"}}})
	}))
	defer server.Close()

	client := api.NewClient(server.URL)
	resp, err := client.DetectBatch(context.Background(), []gateway.Upload{
		{Filename: "a.png", Data: []byte("a")},
		{Filename: "b.png", Data: []byte("b")},
	})
	if err != nil {
		t.Fatalf("DetectBatch() error = %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results", len(resp.Results))
	}
}

func TestClientHealthUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := api.NewClient(server.URL)
	if err := client.Health(context.Background()); err == nil {
		t.Fatal("expected error against closed server")
	}
}
