package stream

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// GenerateRequest describes one generation job. Params is forwarded to the
// generator verbatim.
type GenerateRequest struct {
	CompanyCode string         `json:"company_code"`
	JobCode     string         `json:"job_code"`
	Params      map[string]any `json:"params,omitempty"`
}

// Stream is a pull iterator over generated text chunks. Next returns io.EOF
// when the sequence is complete.
type Stream interface {
	Next() (string, error)
	Close() error
}

// Streamer produces a finite chunk stream for a generation request.
type Streamer interface {
	Stream(ctx context.Context, req GenerateRequest) (Stream, error)
}

// TitleFromMarkdown extracts the first Markdown heading, hashes stripped,
// or returns the fallback.
func TitleFromMarkdown(md, fallback string) string {
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			t := strings.TrimSpace(strings.TrimLeft(line, "#"))
			if t != "" {
				return t
			}
		}
		break
	}
	return fallback
}

// chunkStream iterates a fixed chunk slice with an optional delay per
// chunk, respecting context cancellation.
type chunkStream struct {
	ctx    context.Context
	chunks []string
	delay  time.Duration
	idx    int
}

func (s *chunkStream) Next() (string, error) {
	if s.idx >= len(s.chunks) {
		return "", io.EOF
	}
	if s.delay > 0 {
		select {
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		case <-time.After(s.delay):
		}
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, nil
}

func (s *chunkStream) Close() error { return nil }

// StaticStreamer replays a fixed chunk script. Used in tests and as the
// building block of the template streamer.
type StaticStreamer struct {
	Chunks []string
	Delay  time.Duration
	Err    error // returned after the last chunk instead of EOF when set
}

func (s *StaticStreamer) Stream(ctx context.Context, _ GenerateRequest) (Stream, error) {
	if s.Err != nil {
		return &erroringStream{chunkStream{ctx: ctx, chunks: s.Chunks, delay: s.Delay}, s.Err}, nil
	}
	return &chunkStream{ctx: ctx, chunks: s.Chunks, delay: s.Delay}, nil
}

type erroringStream struct {
	chunkStream
	err error
}

func (s *erroringStream) Next() (string, error) {
	c, err := s.chunkStream.Next()
	if err == io.EOF {
		return "", s.err
	}
	return c, err
}

// TemplateStreamer fabricates a plausible JD in a handful of delayed
// chunks. It stands in for a real LLM generator when no upstream is
// configured; the queue pipeline around it behaves exactly as in
// production.
type TemplateStreamer struct {
	ChunkDelay time.Duration
}

func NewTemplateStreamer() *TemplateStreamer {
	return &TemplateStreamer{ChunkDelay: 80 * time.Millisecond}
}

func (t *TemplateStreamer) Stream(ctx context.Context, req GenerateRequest) (Stream, error) {
	company := req.CompanyCode
	if company == "" {
		company = "Acme"
	}
	job := req.JobCode
	if job == "" {
		job = "Engineer"
	}

	chunks := []string{
		fmt.Sprintf("# %s %s\n\n", company, job),
		"## About the role\n",
		fmt.Sprintf("%s is looking for a %s to join the team.\n\n", company, job),
		"## Responsibilities\n",
		"- Own features end to end\n- Collaborate across teams\n\n",
		"## Requirements\n",
		fmt.Sprintf("- Experience relevant to the %s role\n- Strong communication skills\n", job),
	}
	return &chunkStream{ctx: ctx, chunks: chunks, delay: t.ChunkDelay}, nil
}
