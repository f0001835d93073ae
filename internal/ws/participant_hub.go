package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// ParticipantMessage notifies one exam-taker of a change to their own
// monitoring session (suspension, admin termination).
type ParticipantMessage struct {
	Type           string `json:"type"`
	SessionID      string `json:"session_id,omitempty"`
	Status         string `json:"status,omitempty"`
	SuspicionScore int    `json:"suspicion_score,omitempty"`
	Message        string `json:"message,omitempty"`
}

type participantNotification struct {
	subjectID string
	payload   []byte
}

type ParticipantHub struct {
	register   chan *participantClient
	unregister chan *participantClient
	notify     chan participantNotification
	clients    map[string]*participantClient
}

func NewParticipantHub() *ParticipantHub {
	return &ParticipantHub{
		register:   make(chan *participantClient),
		unregister: make(chan *participantClient),
		notify:     make(chan participantNotification, 256),
		clients:    make(map[string]*participantClient),
	}
}

func (h *ParticipantHub) Run() {
	for {
		select {
		case client := <-h.register:
			if existing, ok := h.clients[client.subjectID]; ok {
				existing.conn.Close()
			}
			h.clients[client.subjectID] = client
		case client := <-h.unregister:
			if stored, ok := h.clients[client.subjectID]; ok && stored == client {
				delete(h.clients, client.subjectID)
			}
		case msg := <-h.notify:
			if client, ok := h.clients[msg.subjectID]; ok {
				select {
				case client.send <- msg.payload:
				default:
					client.conn.Close()
					delete(h.clients, msg.subjectID)
				}
			}
		}
	}
}

func (h *ParticipantHub) Notify(subjectID string, message ParticipantMessage) {
	if h == nil {
		return
	}
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	h.notify <- participantNotification{
		subjectID: subjectID,
		payload:   data,
	}
}

type participantClient struct {
	hub       *ParticipantHub
	conn      *websocket.Conn
	send      chan []byte
	subjectID string
}

func newParticipantClient(hub *ParticipantHub, conn *websocket.Conn, subjectID string) *participantClient {
	return &participantClient{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 64),
		subjectID: subjectID,
	}
}

func (c *participantClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *participantClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
