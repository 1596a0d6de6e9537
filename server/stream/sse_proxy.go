package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SSEProxyStreamer drives a remote generation service that speaks
// server-sent events: it POSTs the request and relays the upstream delta
// frames as chunks.
type SSEProxyStreamer struct {
	URL    string
	Client *http.Client
}

func NewSSEProxyStreamer(url string) *SSEProxyStreamer {
	return &SSEProxyStreamer{
		URL: url,
		// Generation can run for minutes; no client timeout.
		Client: &http.Client{},
	}
}

func (s *SSEProxyStreamer) Stream(ctx context.Context, req GenerateRequest) (Stream, error) {
	body := map[string]any{
		"company_code": req.CompanyCode,
		"job_code":     req.JobCode,
	}
	for k, v := range req.Params {
		body[k] = v
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := s.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("generator returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return &sseStream{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

type sseStream struct {
	body     io.ReadCloser
	scanner  *bufio.Scanner
	curEvent string
}

// Next reads upstream frames until a delta arrives. An upstream "error"
// frame aborts the stream; "end" (or upstream close) terminates it.
func (s *sseStream) Next() (string, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "event:") {
			s.curEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		raw := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var data map[string]any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			data = map[string]any{"text": raw}
		}

		switch s.curEvent {
		case "delta":
			return pickText(data), nil
		case "error":
			msg, _ := data["message"].(string)
			if msg == "" {
				msg = raw
			}
			return "", fmt.Errorf("generator error: %s", msg)
		case "end":
			return "", io.EOF
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

func pickText(data map[string]any) string {
	for _, key := range []string{"text", "delta", "content"} {
		if v, ok := data[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
