package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetTool_PlainURLInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	tool := NewGetTool(Config{})
	result := tool.Call(context.Background(), srv.URL)
	if !result.Success {
		t.Fatalf("get failed: %+v", result)
	}
	var out struct {
		Status int    `json:"status"`
		Body   string `json:"body"`
	}
	if err := json.Unmarshal([]byte(result.Output), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Status != 200 || out.Body != "pong" {
		t.Fatalf("got %+v", out)
	}
}

func TestGetTool_RejectsEmptyURL(t *testing.T) {
	tool := NewGetTool(Config{})
	result := tool.Call(context.Background(), "")
	if result.Success {
		t.Fatal("expected failure for empty URL")
	}
}

func TestGetTool_RejectsMalformedURL(t *testing.T) {
	tool := NewGetTool(Config{})
	result := tool.Call(context.Background(), "not-a-url-at-all ://")
	if result.Success {
		t.Fatal("expected failure for malformed URL")
	}
}

func TestPostTool_SendsBodyAndHeaders(t *testing.T) {
	var gotBody string
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		gotHeader = r.Header.Get("X-Test")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tool := NewPostTool(Config{})
	input, _ := json.Marshal(map[string]any{
		"url":     srv.URL,
		"body":    "payload",
		"headers": map[string]string{"X-Test": "yes"},
	})
	result := tool.Call(context.Background(), string(input))
	if !result.Success {
		t.Fatalf("post failed: %+v", result)
	}
	if gotBody != "payload" {
		t.Errorf("server saw body %q, want payload", gotBody)
	}
	if gotHeader != "yes" {
		t.Errorf("server saw header %q, want yes", gotHeader)
	}
}

func TestPostTool_RejectsMissingURL(t *testing.T) {
	tool := NewPostTool(Config{})
	input, _ := json.Marshal(map[string]any{"body": "x"})
	result := tool.Call(context.Background(), string(input))
	if result.Success {
		t.Fatal("expected failure for missing URL")
	}
}
