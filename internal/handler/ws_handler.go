package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/converseapp/converse/internal/model"
	"github.com/converseapp/converse/internal/service"
	"github.com/converseapp/converse/internal/ws"
	"github.com/converseapp/converse/pkg/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, validate origin
	},
}

// WSHandler handles WebSocket connections
type WSHandler struct {
	hub         *ws.Hub
	chatService *service.ChatService
	jwtManager  *auth.JWTManager
}

func NewWSHandler(hub *ws.Hub, chatService *service.ChatService, jwtManager *auth.JWTManager) *WSHandler {
	return &WSHandler{
		hub:         hub,
		chatService: chatService,
		jwtManager:  jwtManager,
	}
}

// HandleWebSocket upgrades HTTP to WebSocket and manages the connection
// Client connects with: ws://host/ws?token=<jwt_token>
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	// Authenticate via query parameter (WebSocket can't use Authorization header)
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	claims, err := h.jwtManager.ValidateToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, claims.UserID)
	h.hub.Register(client)

	// Subscribe the socket to every conversation the user belongs to.
	// Rooms for conversations joined later are handled by the hub on
	// membership events.
	if conversations, err := h.chatService.GetConversations(claims.UserID); err == nil {
		for _, conv := range conversations {
			h.hub.JoinRoom(client, ws.ConversationRoom(conv.ID))
		}
	}

	log.Printf("✅ WS Connected: UserID=%s", claims.UserID)

	go client.WritePump()
	go client.ReadPump(h.handleWSMessage)
}

// handleWSMessage processes inbound client frames. Only ephemeral
// signals come in this way; messages, reactions and receipts go
// through the REST surface so the ledger write always comes first.
func (h *WSHandler) handleWSMessage(client *ws.Client, event model.WSEvent) {
	switch event.Event {
	case model.WSEventTyping, model.WSEventStopTyping:
		h.handleTyping(client, event)
	default:
		log.Printf("Unknown WebSocket event type: %s", event.Event)
	}
}

// handleTyping relays a typing indicator to the conversation room.
// Best-effort on purpose: nothing is persisted and a miss is fine.
func (h *WSHandler) handleTyping(client *ws.Client, event model.WSEvent) {
	payloadBytes, _ := json.Marshal(event.Payload)
	var payload struct {
		ConversationID uuid.UUID `json:"conversation_id"`
	}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		log.Printf("Error parsing typing payload: %v", err)
		return
	}

	isMember, err := h.chatService.IsParticipant(payload.ConversationID, client.UserID)
	if err != nil || !isMember {
		return
	}

	h.hub.PublishToConversation(payload.ConversationID, event.Event, model.TypingEvent{
		ConversationID: payload.ConversationID,
		UserID:         client.UserID,
	})
}
