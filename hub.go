package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// WSMessage represents a message from the client
type WSMessage struct {
	Action   string `json:"action"`
	Name     string `json:"name,omitempty"`
	Code     string `json:"code,omitempty"`
	Type     string `json:"type,omitempty"`
	Target   string `json:"target,omitempty"`
	Text     string `json:"text,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
	Public   bool   `json:"public,omitempty"`
}

// Client is one websocket connection. A session may hold several.
type Client struct {
	conn    *websocket.Conn
	session string
	send    chan []byte

	// Seat held through this connection, guarded by Hub.mu.
	code          string
	participantID string
}

// Hub routes room events to connections and client intents to rooms.
// Its lock is a leaf: rooms call Broadcast and SendTo while holding their own.
type Hub struct {
	clients    map[*Client]struct{}
	unregister chan *Client
	mu         sync.RWMutex
	done       chan struct{}
	wg         sync.WaitGroup

	registry *Registry
	log      *AppLogger
}

func newHub(log *AppLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		log:        log,
	}
}

// attach wires the registry the hub dispatches into. The registry in turn
// uses the hub as its Emitter.
func (h *Hub) attach(reg *Registry) {
	h.registry = reg
}

// stop signals the hub goroutine to exit and waits for it to finish
func (h *Hub) stop() {
	close(h.done)
	h.wg.Wait()
}

// add registers a connection before anything is sent to it.
func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("websocket client connected", zap.String("session", client.session), zap.Int("total", total))
}

// start runs the hub loop until stop is called.
func (h *Hub) start() {
	h.wg.Add(1)
	go h.run()
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; !ok {
				h.mu.Unlock()
				continue
			}
			delete(h.clients, client)
			close(client.send)
			code, pid := client.code, client.participantID
			stillSeated := false
			for c := range h.clients {
				if c.code == code && c.participantID == pid {
					stillSeated = true
					break
				}
			}
			total := len(h.clients)
			h.mu.Unlock()

			h.log.Debug("websocket client disconnected", zap.String("session", client.session), zap.Int("total", total))
			// Leave outside h.mu: the room emits while we wait on it.
			if code != "" && !stillSeated {
				h.leave(code, pid)
			}
		}
	}
}

func (h *Hub) deliver(ev Event, match func(*Client) bool) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !match(c) {
			continue
		}
		select {
		case c.send <- msg:
			h.log.LogWS("OUT", c.session, msg)
		default:
			h.log.Warn("send buffer full, dropping event", zap.String("session", c.session), zap.String("type", ev.Type))
		}
	}
}

// Broadcast implements Emitter.
func (h *Hub) Broadcast(code string, ev Event) {
	h.deliver(ev, func(c *Client) bool { return c.code == code })
}

// SendTo implements Emitter. Agents have no connection, so nothing is sent.
func (h *Hub) SendTo(code, participantID string, ev Event) {
	h.deliver(ev, func(c *Client) bool { return c.code == code && c.participantID == participantID })
}

func (h *Hub) reply(c *Client, ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal reply", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
		h.log.LogWS("OUT", c.session, msg)
	default:
		h.log.Warn("send buffer full, dropping reply", zap.String("session", c.session), zap.String("type", ev.Type))
	}
}

func (h *Hub) seatOf(c *Client) (code, participantID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.code, c.participantID
}

func (h *Hub) seat(c *Client, code, participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.code, c.participantID = code, participantID
}

func (h *Hub) broadcastRoster(code string) {
	room, err := h.registry.Room(code)
	if err != nil {
		return
	}
	h.Broadcast(code, Event{Type: EventRosterUpdate, Payload: room.Roster()})
}

func (h *Hub) leave(code, participantID string) {
	torndown, err := h.registry.RemoveParticipant(code, participantID)
	if err != nil {
		h.log.Debug("leave", zap.String("room", code), zap.Error(err))
		return
	}
	if !torndown {
		h.broadcastRoster(code)
	}
}

// room resolves the client's current room.
func (h *Hub) room(c *Client) (*Room, string, error) {
	code, pid := h.seatOf(c)
	if code == "" {
		return nil, "", ErrNotInRoom
	}
	room, err := h.registry.Room(code)
	if err != nil {
		return nil, "", err
	}
	return room, pid, nil
}

func (h *Hub) handleWSMessage(c *Client, message []byte) {
	h.log.LogWS("IN", c.session, message)

	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		h.log.Debug("websocket unmarshal error", zap.String("session", c.session), zap.Error(err))
		h.reply(c, Event{Type: EventError, Payload: ErrorPayload{Code: "bad_request", Reason: "Malformed message"}})
		return
	}

	if err := h.dispatch(c, msg); err != nil {
		h.reply(c, errorEvent(msg.Action, err))
	}
}

// dispatch routes one intent. Returned errors go back to the sender only.
func (h *Hub) dispatch(c *Client, msg WSMessage) error {
	switch msg.Action {
	case IntentCreateRoom:
		room, p, err := h.registry.CreateRoom(msg.Name, c.session)
		if err != nil {
			return err
		}
		h.seat(c, room.Code, p.ID)
		h.reply(c, Event{Type: EventRoomCreated, Payload: RoomPayload{Code: room.Code, ParticipantID: p.ID}})
		h.broadcastRoster(room.Code)
		return nil

	case IntentJoinRoom:
		room, p, err := h.registry.JoinRoom(msg.Code, msg.Name, c.session)
		if err != nil {
			return err
		}
		h.seat(c, room.Code, p.ID)
		h.reply(c, Event{Type: EventRoomJoined, Payload: RoomPayload{Code: room.Code, ParticipantID: p.ID}})
		h.broadcastRoster(room.Code)
		return nil
	}

	room, pid, err := h.room(c)
	if err != nil {
		return err
	}

	switch msg.Action {
	case IntentLeaveRoom:
		h.seat(c, "", "")
		h.leave(room.Code, pid)
		return nil
	case IntentAddAgent:
		if _, err := h.registry.AddAgent(room.Code, pid, msg.Name); err != nil {
			return err
		}
		h.broadcastRoster(room.Code)
	case IntentRemoveAgent:
		if _, err := h.registry.RemoveAgent(room.Code, pid, msg.Name); err != nil {
			return err
		}
		h.broadcastRoster(room.Code)
	case IntentSetCapacity:
		if err := h.registry.SetCapacity(room.Code, pid, msg.Capacity); err != nil {
			return err
		}
		h.broadcastRoster(room.Code)
	case IntentStartGame:
		return room.StartGame(pid)
	case IntentNightAction:
		return room.SubmitNightAction(pid, ActionType(msg.Type), msg.Target)
	case IntentVote:
		return room.SubmitVote(pid, msg.Target)
	case IntentVoteVisibility:
		return room.SetVoteVisibility(pid, msg.Public)
	case IntentChat:
		return room.Chat(pid, msg.Text)
	case IntentResetGame:
		return room.Reset(pid)
	default:
		h.log.Debug("unknown action", zap.String("action", msg.Action), zap.String("session", c.session))
		return ErrInvalidAction
	}
	return nil
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, minted := sessionFromRequest(r)

	var upgrader = websocket.Upgrader{
		// CheckOrigin: func(r *http.Request) bool {
		// 	return true // Allow all origins for local development
		// },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade error", zap.String("session", session), zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{conn: conn, session: session, send: make(chan []byte, sendBufferSize)}
	h.add(client)
	go client.writePump()

	if minted {
		h.reply(client, Event{Type: EventSession, Payload: SessionPayload{Session: session}})
	} else if code, pid, ok := h.registry.SeatOf(session); ok {
		// Reconnect: pick the seat back up.
		h.seat(client, code, pid)
		h.reply(client, Event{Type: EventRoomJoined, Payload: RoomPayload{Code: code, ParticipantID: pid}})
		h.broadcastRoster(code)
		if room, err := h.registry.Room(code); err == nil {
			room.Resync(pid)
		}
	}

	// Handle messages and disconnection
	go func() {
		defer func() {
			h.unregister <- client
		}()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				break
			}
			h.handleWSMessage(client, message)
		}
	}()
}
