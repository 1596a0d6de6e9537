package stream

import (
	"context"
	"io"
	"log"
	"strings"

	"github.com/hirecraft/jdqueue/server/sink"
	"github.com/hirecraft/jdqueue/server/task"
)

// FallbackTitle is used when the generated markdown has no heading.
const FallbackTitle = "Untitled JD"

// Bridge relays generator chunks into the event hub, accumulates the full
// text, and finalizes the task through the result sink.
type Bridge struct {
	tasks *task.Store
	hub   *task.Hub
	sink  sink.Sink
}

func NewBridge(tasks *task.Store, hub *task.Hub, snk sink.Sink) *Bridge {
	return &Bridge{tasks: tasks, hub: hub, sink: snk}
}

// Run drives one generation to completion. On success the task is finished
// with its saved artifact and exactly one end event is published; on any
// failure the task is failed, one error event is published and the partial
// text is discarded.
func (b *Bridge) Run(ctx context.Context, taskID string, streamer Streamer, req GenerateRequest) error {
	st, err := streamer.Stream(ctx, req)
	if err != nil {
		b.fail(taskID, err)
		return err
	}
	defer st.Close()

	b.hub.Publish(taskID, task.EventStart, map[string]any{"task_id": taskID})

	var accum strings.Builder
	for {
		chunk, err := st.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			b.fail(taskID, err)
			return err
		}
		if chunk == "" {
			continue
		}
		accum.WriteString(chunk)
		b.hub.Publish(taskID, task.EventDelta, map[string]any{"text": chunk})
	}

	markdown := accum.String()
	title := TitleFromMarkdown(markdown, FallbackTitle)

	savedID, err := b.sink.Save(ctx, taskID, title, markdown, map[string]any{
		"company_code": req.CompanyCode,
		"job_code":     req.JobCode,
	})
	if err != nil {
		// Text was complete but could not be recorded; the task still fails.
		b.fail(taskID, err)
		return err
	}

	b.tasks.Finish(taskID, savedID, &task.Result{Title: title, Markdown: markdown})
	b.hub.Publish(taskID, task.EventEnd, map[string]any{
		"saved_id": savedID,
		"title":    title,
		"markdown": markdown,
	})
	return nil
}

// RunCollected runs the generation without publishing deltas; the
// non-stream path uses it and reads the result off the task record.
func (b *Bridge) RunCollected(ctx context.Context, taskID string, streamer Streamer, req GenerateRequest) error {
	st, err := streamer.Stream(ctx, req)
	if err != nil {
		b.fail(taskID, err)
		return err
	}
	defer st.Close()

	var accum strings.Builder
	for {
		chunk, err := st.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			b.fail(taskID, err)
			return err
		}
		accum.WriteString(chunk)
	}

	markdown := accum.String()
	title := TitleFromMarkdown(markdown, FallbackTitle)

	savedID, err := b.sink.Save(ctx, taskID, title, markdown, map[string]any{
		"company_code": req.CompanyCode,
		"job_code":     req.JobCode,
	})
	if err != nil {
		b.fail(taskID, err)
		return err
	}

	b.tasks.Finish(taskID, savedID, &task.Result{Title: title, Markdown: markdown})
	return nil
}

func (b *Bridge) fail(taskID string, err error) {
	log.Printf("generation failed for task %s: %v", taskID, err)
	b.tasks.Fail(taskID, err.Error())
	b.hub.Publish(taskID, task.EventError, map[string]any{"message": err.Error()})
}
