package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const streamHeartbeat = 25 * time.Second

// notificationStream pushes the caller's notifications and all announcements
// as Server-Sent Events until the client goes away.
func (a *API) notificationStream(w http.ResponseWriter, r *http.Request) {
	if a.svc.Live == nil {
		writeErrorCode(w, r, http.StatusServiceUnavailable, "unavailable", "streaming disabled")
		return
	}

	rc := http.NewResponseController(w)
	// the server-wide write timeout would cut the stream
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := a.svc.Live.Subscribe(r.Context(), principalOf(r).Subject)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, payload)
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
