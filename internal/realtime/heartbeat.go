package realtime

import (
	"context"
	"log/slog"
	"time"
)

// Heartbeat sends a {"type":"ping"} frame down conn every interval until ctx
// is done, per SPEC_FULL §4.7. Read timeout (interval+grace) is enforced by
// the caller's read loop via conn.SetReadDeadline and refreshed on pong.
func Heartbeat(ctx context.Context, conn *SafeConn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
				slog.Debug("realtime: heartbeat write failed", "error", err)
				return
			}
		}
	}
}

// IsPong reports whether a raw inbound frame is a pong acknowledgement —
// either `{"type":"pong"}` or the bare literal "pong" — resetting the
// liveness clock per SPEC_FULL §4.7.
func IsPong(raw []byte) bool {
	if string(raw) == "pong" {
		return true
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Type == "pong"
}
