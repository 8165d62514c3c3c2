package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Dosada05/achievement-portal/realtime"
	"github.com/gorilla/websocket"
)

const maxSubscribedYears = 5

type WebSocketHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler: allowedOrigins с "*" разрешает любой Origin.
func NewWebSocketHandler(hub *realtime.Hub, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		logger: logger,
	}
}

func subscribedYears(raw string) []int {
	var years []int
	seen := map[int]bool{}
	for _, part := range strings.Split(raw, ",") {
		y, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || y < 1 || y > 9999 || seen[y] {
			continue
		}
		seen[y] = true
		years = append(years, y)
		if len(years) == maxSubscribedYears {
			break
		}
	}
	return years
}

// ServeWs подписывает клиента на его личную комнату и на лидерборды из ?years=2024,2025.
// Аутентификация выполняется middleware до апгрейда (токен передаётся в ?token=).
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	rooms := []string{realtime.UserRoom(actor.UserID)}
	for _, y := range subscribedYears(r.URL.Query().Get("years")) {
		rooms = append(rooms, realtime.YearRoom(y))
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту ошибкой
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.String("user_id", actor.UserID.String()), slog.Any("error", err))
		return
	}
	h.logger.DebugContext(r.Context(), "websocket connected", slog.String("user_id", actor.UserID.String()), slog.Int("rooms", len(rooms)))

	client := realtime.NewClient(h.hub, conn, rooms...)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
