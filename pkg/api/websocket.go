package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"streamplex/pkg/config"
	"streamplex/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served from the same process
	},
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WS upgrade failed", "err", err)
		return
	}

	client := &Client{conn: conn, send: make(chan WSMessage, 256)}
	s.AddClient(client)

	defer func() {
		s.RemoveClient(client)
		conn.Close()
	}()

	logger.Debug("WS Client connected", "remote", r.RemoteAddr)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	// Push initial state before the loops start
	go func() {
		s.sendStats(client, r)
		s.sendConfig(client)
		s.sendLogHistory(client)
	}()

	// Read loop (Client -> Server)
	go func() {
		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Debug("WS read error", "err", err)
				}
				conn.Close()
				return
			}

			switch msg.Type {
			case "get_config":
				s.sendConfig(client)
			case "save_config":
				s.handleSaveConfigWS(client, msg.Payload)
			}
		}
	}()

	// Write loop (Server -> Client)
	for {
		select {
		case <-ticker.C:
			s.sendStats(client, r)
		case msg, ok := <-client.send:
			if !ok {
				// Channel closed by RemoveClient
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendStats(client *Client, r *http.Request) {
	stats := s.collectStats(r.Context())
	payload, _ := json.Marshal(stats)
	select {
	case client.send <- WSMessage{Type: "stats", Payload: payload}:
	default:
	}
}

func (s *Server) sendConfig(client *Client) {
	s.mu.RLock()
	payload, _ := json.Marshal(s.config)
	s.mu.RUnlock()

	select {
	case client.send <- WSMessage{Type: "config", Payload: payload}:
	default:
	}
}

func (s *Server) sendLogHistory(client *Client) {
	history := logger.GetHistory()
	payload, _ := json.Marshal(history)

	select {
	case client.send <- WSMessage{Type: "log_history", Payload: payload}:
	default:
	}
}

func (s *Server) handleSaveConfigWS(client *Client, payload json.RawMessage) {
	var newCfg config.Config
	if err := json.Unmarshal(payload, &newCfg); err != nil {
		client.send <- WSMessage{Type: "save_status", Payload: json.RawMessage(`{"status":"error","message":"Invalid config data"}`)}
		return
	}

	if errMsg := validateConfig(&newCfg); errMsg != "" {
		errorPayload, _ := json.Marshal(map[string]string{
			"status":  "error",
			"message": errMsg,
		})
		client.send <- WSMessage{Type: "save_status", Payload: errorPayload}
		return
	}

	s.mu.Lock()
	// Secrets and the load path never travel over the wire; keep the
	// current values.
	loadedPath := s.config.LoadedPath
	tmdbKey := s.config.TMDBAPIKey

	*s.config = newCfg
	s.config.LoadedPath = loadedPath
	s.config.TMDBAPIKey = tmdbKey

	// Apply Log Level immediately; TTL and port changes take effect on
	// restart.
	logger.SetLevel(s.config.LogLevel)

	err := s.config.Save()
	s.mu.Unlock()

	if err != nil {
		client.send <- WSMessage{Type: "save_status", Payload: json.RawMessage([]byte(fmt.Sprintf(`{"status":"error","message":"%s"}`, err.Error())))}
		return
	}

	s.sendConfig(client)
	client.send <- WSMessage{Type: "save_status", Payload: json.RawMessage(`{"status":"success","message":"Configuration saved. Port and TTL changes apply after restart."}`)}
}

// validateConfig sanity-checks user supplied settings.
func validateConfig(cfg *config.Config) string {
	if cfg.AddonPort < 1 || cfg.AddonPort > 65535 {
		return "Addon port must be between 1 and 65535"
	}
	if cfg.RegistryBaseURL == "" {
		return "Registry base URL is required"
	}
	if cfg.ProviderTimeoutSeconds < 1 {
		return "Provider timeout must be at least 1 second"
	}
	if cfg.ManifestTTLSeconds < 0 || cfg.PluginTTLSeconds < 0 || cfg.ResolveTTLSeconds < 0 {
		return "TTL values cannot be negative"
	}
	return ""
}
