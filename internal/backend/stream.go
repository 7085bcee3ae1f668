package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"boltbridge/internal/event"
)

// maxStreamLineSize bounds one SSE line; task.output chunks can be large.
const maxStreamLineSize = 1024 * 1024

// StreamSubscribe opens the backend's long-lived event stream for a task
// and forwards each decoded event to sink. The call blocks until the
// upstream stream closes, errors, or ctx is canceled.
//
// The stream is advisory: the orchestrator's polling path does not depend
// on it. Failures therefore never propagate as errors to the caller's
// control flow beyond logging; on a broken stream one synthetic error
// event is sent to the sink before returning.
func (c *Client) StreamSubscribe(ctx context.Context, taskID string, sink func(event.StreamEvent)) error {
	url := fmt.Sprintf("%s/implementation/%s/stream", c.baseURL, taskID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("backend stream connect failed", "task_id", taskID, "error", err)
		sink(event.NewError("stream_error", "failed to connect to backend stream"))
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("backend stream rejected", "task_id", taskID, "status", resp.StatusCode)
		sink(event.NewError("stream_error", fmt.Sprintf("backend stream returned status %d", resp.StatusCode)))
		return fmt.Errorf("backend stream returned status %d", resp.StatusCode)
	}

	c.logger.Debug("backend stream connected", "task_id", taskID)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineSize)

	var eventType string
	var dataLines []string

	flush := func() {
		if eventType == "" && len(dataLines) == 0 {
			return
		}
		e, ok := c.decodeStreamEvent(taskID, eventType, strings.Join(dataLines, "\n"))
		eventType, dataLines = "", nil
		if ok {
			sink(e)
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// A blank line terminates one event block.
			flush()
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// comment/heartbeat
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			// Canceled by the orchestrator reaching a terminal state.
			return ctx.Err()
		}
		c.logger.Warn("backend stream read failed", "task_id", taskID, "error", err)
		sink(event.NewError("stream_error", "backend stream interrupted"))
		return err
	}

	c.logger.Debug("backend stream closed", "task_id", taskID)
	return nil
}

// decodeStreamEvent parses one SSE block's data payload. Malformed bodies
// are logged and skipped, not fatal to the read loop.
func (c *Client) decodeStreamEvent(taskID, eventType, data string) (event.StreamEvent, bool) {
	if data == "" {
		return event.StreamEvent{}, false
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		c.logger.Warn("skipping malformed stream event",
			"task_id", taskID, "event", eventType, "error", err)
		return event.StreamEvent{}, false
	}

	e := event.StreamEvent{
		Type:      event.Type(eventType),
		Data:      payload,
		Timestamp: time.Now(),
	}
	if e.Type == "" {
		// SSE blocks without an event field default to "message"; the
		// backend always names its events, so treat these as output.
		e.Type = event.TypeTaskOutput
	}

	// Re-publishing merges our own timestamp; lift the upstream one out of
	// the payload when it parses.
	if raw, ok := payload["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			e.Timestamp = ts
			delete(payload, "timestamp")
		}
	}

	return e, true
}
