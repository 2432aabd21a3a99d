package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/converseapp/converse/internal/model"
)

const redisChannel = "converse:events"

// ConversationRoom is the broadcast room shared by a conversation's
// connected participants.
func ConversationRoom(conversationID uuid.UUID) string {
	return "conversation:" + conversationID.String()
}

// UserRoom is the per-user room for receiver-addressed events.
func UserRoom(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// Hub maps rooms to connected clients and fans events out to them.
// Redis Pub/Sub bridges hub instances so delivery works across
// horizontally scaled processes. Publishes are fire-and-forget: an
// empty room is a silent no-op, the message ledger is the source of
// truth and a disconnected client reconciles via history on reconnect.
type Hub struct {
	rooms       map[string]map[*Client]bool
	clientRooms map[*Client]map[string]bool
	userConns   map[uuid.UUID]int
	mu          sync.RWMutex

	register   chan *Client
	unregister chan *Client

	rdb *redis.Client

	// Callback when user comes online/offline
	onStatusChange func(userID uuid.UUID, online bool)
}

// NewHub creates a new Hub bridged over the given Redis client.
func NewHub(rdb *redis.Client, onStatusChange func(userID uuid.UUID, online bool)) *Hub {
	return &Hub{
		rooms:          make(map[string]map[*Client]bool),
		clientRooms:    make(map[*Client]map[string]bool),
		userConns:      make(map[uuid.UUID]int),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		rdb:            rdb,
		onStatusChange: onStatusChange,
	}
}

// Run starts the Hub's main event loop
func (h *Hub) Run(ctx context.Context) {
	go h.subscribeRedis(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Register queues a client for registration with the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// JoinRoom adds a client to a room.
func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinRoomLocked(client, room)
}

func (h *Hub) joinRoomLocked(client *Client, room string) {
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	if _, ok := h.clientRooms[client]; !ok {
		h.clientRooms[client] = make(map[string]bool)
	}
	h.clientRooms[client][room] = true
}

// LeaveRoom removes a client from a room.
func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(client, room)
}

func (h *Hub) leaveRoomLocked(client *Client, room string) {
	if clients, ok := h.rooms[room]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.clientRooms[client]; ok {
		delete(rooms, room)
	}
}

// addClient registers a connection and joins the user's personal room.
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.joinRoomLocked(client, UserRoom(client.UserID))
	h.userConns[client.UserID]++
	first := h.userConns[client.UserID] == 1
	h.mu.Unlock()

	if first {
		// User just came online (first connection)
		if h.onStatusChange != nil {
			go h.onStatusChange(client.UserID, true)
		}
		h.PublishToUser(client.UserID, model.WSEventOnline, model.OnlineEvent{UserID: client.UserID, IsOnline: true})
	}
	log.Printf("✅ Client connected: %s", client.UserID)
}

// removeClient drops a connection and all its room memberships. No
// persisted state is touched; disconnect is purely a ws-layer event.
// A client evicted by deliverLocal arrives here with its rooms already
// torn down and its send channel closed; only the connection count
// still needs settling then.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if rooms, tracked := h.clientRooms[client]; tracked {
		for room := range rooms {
			if clients, ok := h.rooms[room]; ok {
				delete(clients, client)
				if len(clients) == 0 {
					delete(h.rooms, room)
				}
			}
		}
		delete(h.clientRooms, client)
		close(client.send)
	}

	last := false
	if h.userConns[client.UserID] > 0 {
		h.userConns[client.UserID]--
		if h.userConns[client.UserID] == 0 {
			delete(h.userConns, client.UserID)
			last = true
		}
	}
	h.mu.Unlock()

	if last {
		if h.onStatusChange != nil {
			go h.onStatusChange(client.UserID, false)
		}
		h.PublishToUser(client.UserID, model.WSEventOffline, model.OnlineEvent{UserID: client.UserID, IsOnline: false})
	}
	log.Printf("❌ Client disconnected: %s", client.UserID)
}

// PublishToConversation fans an event out to every connected
// participant of a conversation, across all hub instances.
func (h *Hub) PublishToConversation(conversationID uuid.UUID, event string, payload interface{}) {
	h.publishToRedis(RoomEvent{
		Room:  ConversationRoom(conversationID),
		Event: model.WSEvent{Event: event, Payload: payload},
	})
}

// PublishToUser fans an event out to all of a user's connections.
func (h *Hub) PublishToUser(userID uuid.UUID, event string, payload interface{}) {
	h.publishToRedis(RoomEvent{
		Room:  UserRoom(userID),
		Event: model.WSEvent{Event: event, Payload: payload},
	})
}

// deliverLocal sends pre-marshaled event data to this instance's
// clients in the room. Clients with a full send buffer are dropped.
func (h *Hub) deliverLocal(room string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[room]
	if !ok {
		return
	}
	for client := range clients {
		select {
		case client.send <- data:
		default:
			for r := range h.clientRooms[client] {
				if members, ok := h.rooms[r]; ok {
					delete(members, client)
					if len(members) == 0 {
						delete(h.rooms, r)
					}
				}
			}
			delete(h.clientRooms, client)
			close(client.send)
		}
	}
}

// IsUserOnline checks if a user has any active connections on this instance
func (h *Hub) IsUserOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.userConns[userID] > 0
}

// ========== Redis Pub/Sub bridge ==========

// RoomEvent is the cross-instance wire format: a room key plus the
// event to deliver into it.
type RoomEvent struct {
	Room  string        `json:"room"`
	Event model.WSEvent `json:"event"`
}

func (h *Hub) publishToRedis(ev RoomEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error marshaling room event: %v", err)
		return
	}
	if err := h.rdb.Publish(context.Background(), redisChannel, data).Err(); err != nil {
		log.Printf("Error publishing to Redis: %v", err)
	}
}

// subscribeRedis delivers bridged events to local clients and keeps
// room membership current as groups change.
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	log.Println("📡 Redis Pub/Sub subscriber started")

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			var ev RoomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("Error unmarshaling Redis message: %v", err)
				continue
			}

			eventData, err := json.Marshal(ev.Event)
			if err != nil {
				continue
			}
			// Deliver before touching room membership: groupDeleted
			// must reach the room's members before it empties the room.
			h.deliverLocal(ev.Room, eventData)
			h.maintainRooms(ev)
		}
	}
}

// maintainRooms reacts to membership events so live sockets start (or
// stop) receiving a conversation's traffic without reconnecting.
func (h *Hub) maintainRooms(ev RoomEvent) {
	switch ev.Event.Event {
	case model.WSEventMemberAdded, model.WSEventGroupCreated:
		convID, userID, ok := membershipTarget(ev)
		if !ok {
			return
		}
		h.mu.Lock()
		for client := range h.rooms[UserRoom(userID)] {
			h.joinRoomLocked(client, ConversationRoom(convID))
		}
		h.mu.Unlock()
	case model.WSEventMemberRemoved:
		convID, userID, ok := membershipTarget(ev)
		if !ok {
			return
		}
		h.mu.Lock()
		for client := range h.rooms[UserRoom(userID)] {
			h.leaveRoomLocked(client, ConversationRoom(convID))
		}
		h.mu.Unlock()
	case model.WSEventGroupDeleted:
		h.mu.Lock()
		for client := range h.rooms[ev.Room] {
			h.leaveRoomLocked(client, ev.Room)
		}
		h.mu.Unlock()
	}
}

// membershipTarget extracts (conversationID, userID) from a membership
// payload delivered to a user room. groupCreated carries the whole
// conversation, memberAdded/-Removed a MembershipEvent.
func membershipTarget(ev RoomEvent) (uuid.UUID, uuid.UUID, bool) {
	raw, err := json.Marshal(ev.Event.Payload)
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}

	userID, ok := roomUserID(ev.Room)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	var payload struct {
		ID             uuid.UUID `json:"id"`              // groupCreated
		ConversationID uuid.UUID `json:"conversation_id"` // membership events
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	convID := payload.ConversationID
	if convID == uuid.Nil {
		convID = payload.ID
	}
	if convID == uuid.Nil {
		return uuid.Nil, uuid.Nil, false
	}
	return convID, userID, true
}

func roomUserID(room string) (uuid.UUID, bool) {
	const prefix = "user:"
	if len(room) <= len(prefix) || room[:len(prefix)] != prefix {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(room[len(prefix):])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
