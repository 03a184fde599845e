package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Jay-Tejada/malunita/internal/config"
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

func TestCaptureRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /captures": `{"capture_id":"cap-123","candidates":[{"id":"t1","capture_id":"cap-123","title":"email Sarah"}],"scores":[{"candidate_id":"t1","priority":"high","effort":"small","total":7.5}],"routing":{"t1":"today"},"one_thing":"t1","used_inference":false}`,
	})

	client := ts.client()

	resp, err := client.post(ctx, "/captures", map[string]any{"text": "email Sarah about the report"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		CaptureID string `json:"capture_id"`
		OneThing  string `json:"one_thing"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result.CaptureID != "cap-123" {
		t.Errorf("capture_id = %q, want cap-123", result.CaptureID)
	}
	if result.OneThing != "t1" {
		t.Errorf("one_thing = %q, want t1", result.OneThing)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	r := ts.requests[0]
	if r.Method != "POST" {
		t.Errorf("method = %q, want POST", r.Method)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["text"] != "email Sarah about the report" {
		t.Errorf("body.text = %v, want the capture text", body["text"])
	}
}

func TestCaptureCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"capture"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
}

func TestImportCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"import"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing input flags")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestAgendaRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /agenda": `{"today":[{"ID":"abcdef12-0000","Title":"pay rent","Priority":"high","Effort":"small","Score":8.1}],"tomorrow":[],"this_week":[],"upcoming":[],"someday":[]}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/agenda")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var agenda map[string][]struct {
		ID    string
		Title string
	}
	if err := decodeJSON(resp, &agenda); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	today := agenda["today"]
	if len(today) != 1 {
		t.Fatalf("expected 1 task in today, got %d", len(today))
	}
	if today[0].Title != "pay rent" {
		t.Errorf("title = %q, want 'pay rent'", today[0].Title)
	}
}

func TestFocusRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /focus": `{"status":"recorded"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/focus", map[string]string{"task_id": "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["task_id"] != "t1" {
		t.Errorf("body.task_id = %v, want t1", body["task_id"])
	}
}

func TestSummaryRequest_Markdown(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /captures/cap-1/summary": "# Capture Summary\n\n## Today\n- pay rent\n",
	})

	client := ts.client()
	resp, err := client.get(ctx, "/captures/cap-1/summary")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body, err := readBody(resp)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !strings.Contains(body, "# Capture Summary") {
		t.Errorf("body = %q, want markdown summary", body)
	}
}

func TestLearnRequest_Skipped(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /preferences/recompute": `{"status":"skipped","reason":"not enough signals"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/preferences/recompute", map[string]any{"force": false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.Status != "skipped" {
		t.Errorf("status = %q, want skipped", result.Status)
	}
	if result.Reason != "not enough signals" {
		t.Errorf("reason = %q, want 'not enough signals'", result.Reason)
	}
}

func TestPrefsRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /preferences": `{"user_id":"local","granularity":"balanced","confidence_bias":0.05}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/preferences")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var prefs map[string]any
	if err := decodeJSON(resp, &prefs); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if prefs["granularity"] != "balanced" {
		t.Errorf("granularity = %v, want balanced", prefs["granularity"])
	}
}

func TestStatusCommand_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	_, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestAPIClient_ContextCancellation(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.get(cancelled, "/health")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no request to reach the server, got %d", len(ts.requests))
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/preferences")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4500
	cfg.Inference.Model = "phi3.5"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4500" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4500 in ShowAll output")
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}
