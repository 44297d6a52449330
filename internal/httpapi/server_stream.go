package httpapi

import (
	"bufio"
	"encoding/json"
	"net/http"
	"time"
)

const streamKeepAlive = 15 * time.Second

// handleStreamSSE serves the live feed: an immediate snapshot on attach,
// then one `positions` event per accepted report (the hub republishes after
// reaper evictions too). The stream ends only when the client disconnects
// or the process shuts down — subscriber teardown is ordinary lifecycle,
// not an error.
func (s server) handleStreamSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	bw := bufio.NewWriterSize(w, 16*1024)

	subID, frames := s.engine.Subscribe()
	defer s.engine.Unsubscribe(subID)
	if userID, ok := userIDFromCtx(ctx); ok {
		logMsg(ctx, "stream attached sub=%s user=%s", subID, userID)
	}

	flush := func() bool {
		if err := bw.Flush(); err != nil {
			logError(ctx, "sse flush failed", err)
			return false
		}
		flusher.Flush()
		return true
	}

	// Initial frame so a new subscriber sees the fleet without waiting for
	// the next report.
	initial, err := json.Marshal(s.engine.Snapshot())
	if err != nil {
		logError(ctx, "snapshot marshal failed", err)
		return
	}
	if err := writeSSE(bw, "positions", initial); err != nil {
		logError(ctx, "sse write failed", err)
		return
	}
	if !flush() {
		return
	}

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			logMsg(ctx, "stream detached sub=%s", subID)
			return
		case frame, ok := <-frames:
			if !ok {
				// Hub shut down; terminal for this subscription.
				return
			}
			if err := writeSSE(bw, "positions", frame); err != nil {
				logError(ctx, "sse write failed", err)
				return
			}
			if !flush() {
				return
			}
		case <-keepAlive.C:
			if _, err := bw.WriteString(": keepalive\n\n"); err != nil {
				logError(ctx, "sse keepalive write failed", err)
				return
			}
			if !flush() {
				return
			}
		}
	}
}

func writeSSE(w *bufio.Writer, eventName string, payload []byte) error {
	if _, err := w.WriteString("event: " + eventName + "\n"); err != nil {
		return err
	}
	if _, err := w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.WriteString("\n\n")
	return err
}
