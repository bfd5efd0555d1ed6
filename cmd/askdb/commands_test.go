package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/datamill/askdb/internal/schema"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestQueryRequestWire(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/ai/query": `{"success":true,"answer":"There are 42 orders.","result_count":1}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/api/ai/query", map[string]any{
		"question":        "how many orders",
		"conversation_id": "conv-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Success bool   `json:"success"`
		Answer  string `json:"answer"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !result.Success || result.Answer != "There are 42 orders." {
		t.Errorf("result = %+v", result)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["question"] != "how many orders" || body["conversation_id"] != "conv-1" {
		t.Errorf("body = %v", body)
	}
}

func TestDecodeJSON_ServerError(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(ctx, "/api/ai/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var v any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v", err)
	}
}

func TestAskCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ask"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing question")
	}
}

func TestSortedGroupNames(t *testing.T) {
	groups := schema.Examples()
	names := sortedGroupNames(groups)

	if len(names) != len(groups) {
		t.Fatalf("got %d names for %d groups", len(names), len(groups))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("names not in ascending order: %q before %q", names[i-1], names[i])
		}
	}
}

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(colorGreen, "hello"); strings.Contains(got, "\033") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", got)
	}

	noColor = false
	if got := colorize(colorGreen, "hello"); !strings.Contains(got, "\033") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", got)
	}
}
