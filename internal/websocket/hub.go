package chatws

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/kshikongo/chat-app/internal/models"
	"github.com/kshikongo/chat-app/internal/services"
)

// Event is the tagged envelope pushed to subscribers: a full snapshot on
// connect, then incremental add/modify/remove deltas.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

const (
	EventSnapshot            = "snapshot"
	EventMessageAdded        = "message.added"
	EventMessageModified     = "message.modified"
	EventMessageRemoved      = "message.removed"
	EventConversationUpdated = "conversation.updated"
	EventConversationRemoved = "conversation.removed"
	EventGroupUpdated        = "group.updated"
	EventGroupRemoved        = "group.removed"
	EventError               = "error"
)

type publication struct {
	recipients []int64
	event      Event
}

// Hub fans committed store changes out to connected clients. Clients are
// keyed by user id; a user may hold several connections. The run loop is a
// single goroutine, so events for one client are delivered in publish order.
type Hub struct {
	clients    map[int64]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	publish    chan publication
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	send   chan []byte
}

type sender interface {
	Send(
		ctx context.Context,
		actorID int64,
		threadType string,
		threadID int64,
		input services.SendMessageInput,
	) (*services.MessageDelivery, error)
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan publication, 64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.send)
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case pub := <-h.publish:
			h.deliver(pub)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish queues an event for every listed recipient. Called only after the
// underlying transaction commits; a failed delivery to one client never
// affects the others or the durability of the write.
func (h *Hub) Publish(recipients []int64, event Event) {
	h.publish <- publication{recipients: recipients, event: event}
}

func (h *Hub) deliver(pub publication) {
	encoded, err := json.Marshal(pub.event)
	if err != nil {
		log.Printf("chat hub encode event: %v", err)
		return
	}

	seen := make(map[int64]struct{}, len(pub.recipients))
	for _, userID := range pub.recipients {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		h.sendToUser(userID, encoded)
	}
}

// sendToUser drops clients whose send buffer is full; a stalled connection
// must not hold up fan-out to everyone else.
func (h *Hub) sendToUser(userID int64, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		select {
		case client.send <- payload:
		default:
			delete(set, client)
			close(client.send)
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

// Enqueue queues one event for this client only. Used for the connect-time
// snapshot and for per-client errors.
func (c *Client) Enqueue(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.hub.Unregister(c)
	}
}

func (c *Client) ReadPump(service sender) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming struct {
			Type       string `json:"type"`
			ThreadType string `json:"thread_type"`
			ThreadID   int64  `json:"thread_id"`
			Kind       string `json:"kind"`
			Content    string `json:"content"`
			ReplyToID  *int64 `json:"reply_to_id"`
		}
		if err := json.Unmarshal(payload, &incoming); err != nil {
			c.writeError("invalid message payload")
			continue
		}
		if incoming.Type != "message" {
			c.writeError("unsupported message type")
			continue
		}
		if incoming.ThreadType != models.ThreadDirect && incoming.ThreadType != models.ThreadGroup {
			c.writeError("invalid thread type")
			continue
		}

		delivery, err := service.Send(
			context.Background(),
			c.userID,
			incoming.ThreadType,
			incoming.ThreadID,
			services.SendMessageInput{
				Kind:      incoming.Kind,
				Content:   incoming.Content,
				ReplyToID: incoming.ReplyToID,
			},
		)
		if err != nil {
			c.writeError("failed to send message")
			continue
		}

		c.hub.Publish(delivery.Recipients, Event{
			Type: EventMessageAdded,
			Data: delivery.Message,
		})
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (c *Client) writeError(message string) {
	c.Enqueue(Event{
		Type: EventError,
		Data: map[string]string{
			"message":   message,
			"timestamp": services.FormatChatTimestamp(time.Now().UTC()),
		},
	})
}

func ParseClientUserID(raw string) (int64, bool) {
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, false
	}
	return userID, true
}
