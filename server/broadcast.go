package server

// Real-time updates pushed to UI clients: sync status changes and
// connectivity flips.

import (
	"time"

	"github.com/mdnaeem95/stupify-extension/syncer"
)

// SyncStatusMessage mirrors the engine's status for the UI.
type SyncStatusMessage struct {
	Type      string       `json:"type"`
	State     syncer.State `json:"state"`
	Success   int          `json:"success"`
	Failed    int          `json:"failed"`
	Message   string       `json:"message,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// ConnectivityMessage reports the derived offline boolean.
type ConnectivityMessage struct {
	Type      string `json:"type"`
	Offline   bool   `json:"offline"`
	Timestamp int64  `json:"timestamp"`
}

func statusMessage(status syncer.Status) SyncStatusMessage {
	return SyncStatusMessage{
		Type:      "sync_status",
		State:     status.State,
		Success:   status.Success,
		Failed:    status.Failed,
		Message:   status.Message,
		Timestamp: time.Now().Unix(),
	}
}

func connectivityMessage(offline bool) ConnectivityMessage {
	return ConnectivityMessage{
		Type:      "connectivity",
		Offline:   offline,
		Timestamp: time.Now().Unix(),
	}
}

// broadcastMessage sends a message to all connected clients.
// Returns the number of clients that accepted the message (channel not full).
func (s *Server) broadcastMessage(msg interface{}) int {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client.enqueue(msg) {
			sent++
		}
	}
	return sent
}

// startBroadcasters subscribes to the engine and monitor so every state
// change reaches connected clients.
func (s *Server) startBroadcasters() {
	s.unsubscribes = append(s.unsubscribes,
		s.engine.Subscribe(func(status syncer.Status) {
			sent := s.broadcastMessage(statusMessage(status))
			s.logger.Debugw("Broadcasted sync status",
				"state", status.State,
				"success", status.Success,
				"failed", status.Failed,
				"clients", sent,
			)
		}),
		s.monitor.Subscribe(func(offline bool) {
			sent := s.broadcastMessage(connectivityMessage(offline))
			s.logger.Debugw("Broadcasted connectivity change",
				"offline", offline,
				"clients", sent,
			)
		}),
	)
}
