package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSSEProxyStreamerRelaysDeltas(t *testing.T) {
	var gotBody map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: start\ndata: {}\n\n")
		fmt.Fprint(w, "event: delta\ndata: {\"text\": \"# JD\\n\"}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: delta\ndata: {\"delta\": \"body\"}\n\n")
		fmt.Fprint(w, "event: end\ndata: {}\n\n")
	}))
	defer upstream.Close()

	s := NewSSEProxyStreamer(upstream.URL)
	st, err := s.Stream(context.Background(), GenerateRequest{
		CompanyCode: "c1",
		JobCode:     "j1",
		Params:      map[string]any{"tone": "formal"},
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	defer st.Close()

	var chunks []string
	for {
		chunk, err := st.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		chunks = append(chunks, chunk)
	}

	if strings.Join(chunks, "") != "# JD\nbody" {
		t.Errorf("collected %q", strings.Join(chunks, ""))
	}
	if gotBody["company_code"] != "c1" || gotBody["job_code"] != "j1" || gotBody["tone"] != "formal" {
		t.Errorf("request body not forwarded: %v", gotBody)
	}
}

func TestSSEProxyStreamerUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: delta\ndata: {\"text\": \"partial\"}\n\n")
		fmt.Fprint(w, "event: error\ndata: {\"message\": \"model overloaded\"}\n\n")
	}))
	defer upstream.Close()

	s := NewSSEProxyStreamer(upstream.URL)
	st, err := s.Stream(context.Background(), GenerateRequest{})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	defer st.Close()

	if chunk, err := st.Next(); err != nil || chunk != "partial" {
		t.Fatalf("first chunk: %q, %v", chunk, err)
	}
	_, err = st.Next()
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("expected the upstream error, got %v", err)
	}
}

func TestSSEProxyStreamerBadStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "generator down", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	s := NewSSEProxyStreamer(upstream.URL)
	_, err := s.Stream(context.Background(), GenerateRequest{})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("expected a status error, got %v", err)
	}
}

func TestSSEProxyStreamerUpstreamCloseIsEOF(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: delta\ndata: {\"text\": \"only\"}\n\n")
	}))
	defer upstream.Close()

	s := NewSSEProxyStreamer(upstream.URL)
	st, err := s.Stream(context.Background(), GenerateRequest{})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	defer st.Close()

	st.Next()
	if _, err := st.Next(); err != io.EOF {
		t.Errorf("upstream close should read as EOF, got %v", err)
	}
}
