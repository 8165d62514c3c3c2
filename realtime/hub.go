package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Типы событий, которые получают клиенты.
const (
	EventNotification       = "notification"
	EventLeaderboardUpdated = "leaderboard_updated"
	EventSignedOut          = "signed_out"
)

type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	Room    string      `json:"room,omitempty"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

func UserRoom(userID uuid.UUID) string { return "user_" + userID.String() }

func YearRoom(year int) string { return "leaderboard_" + strconv.Itoa(year) }

// Hub раздаёт события по комнатам: личная комната пользователя и комнаты лидерборда по годам.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	rooms      map[string]map[*Client]struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]struct{}),
		logger:     logger,
	}
}

// Run обрабатывает подключения до отмены ctx, затем закрывает всех клиентов.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			for _, room := range client.rooms {
				if _, ok := h.rooms[room]; !ok {
					h.rooms[room] = make(map[*Client]struct{})
				}
				h.rooms[room][client] = struct{}{}
			}
			h.mu.Unlock()
			h.logger.Debug("Realtime client registered", slog.Any("rooms", client.rooms))

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.rooms {
				for client := range clients {
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	for _, room := range client.rooms {
		clients, ok := h.rooms[room]
		if !ok {
			continue
		}
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	client.closeOnce.Do(func() { close(client.send) })
}

func (h *Hub) Register(c *Client) { h.register <- c }

func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// RoomSize returns the number of clients subscribed to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast отправляет событие всем клиентам комнаты. Медленные клиенты пропускаются.
func (h *Hub) Broadcast(room string, event Event) {
	event.Room = room
	messageBytes, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal realtime event", slog.String("room", room), slog.String("type", event.Type), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[room] {
		select {
		case client.send <- messageBytes:
		default:
			h.logger.Warn("Realtime client send buffer full, event dropped", slog.String("room", room), slog.String("type", event.Type))
		}
	}
}

func (h *Hub) PublishToUser(userID uuid.UUID, event Event) {
	h.Broadcast(UserRoom(userID), event)
}

func (h *Hub) PublishToYear(year int, event Event) {
	h.Broadcast(YearRoom(year), event)
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	rooms     []string
	closeOnce sync.Once
}

// NewClient создаёт клиента; conn может быть nil в тестах, тогда используются только Messages.
func NewClient(hub *Hub, conn *websocket.Conn, rooms ...string) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		rooms: rooms,
	}
}

// Messages is the outbound queue; it is closed when the hub drops the client.
func (c *Client) Messages() <-chan []byte { return c.send }

// ReadPump только поддерживает соединение живым: входящие сообщения игнорируются.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Realtime client closed unexpectedly", slog.Any("rooms", c.rooms), slog.Any("error", err))
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("Realtime write failed", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
