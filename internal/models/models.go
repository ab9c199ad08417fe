package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Inbound event names accepted from a connection.
const (
	EventJoinDocument = "join-document"
	EventSendChanges  = "send-changes"
	EventSaveDocument = "save-document"
	EventJoinRoom     = "join-room"
	EventSendMessage  = "send-message"
	EventTypingStart  = "typing-start"
	EventTypingStop   = "typing-stop"
)

// Outbound event names emitted to connections.
const (
	EventLoadDocument     = "load-document"
	EventReceiveChanges   = "receive-changes"
	EventRoomData         = "room-data"
	EventUserJoined       = "user-joined"
	EventUserLeft         = "user-left"
	EventNewMessage       = "new-message"
	EventMessageDelivered = "message-delivered"
	EventUserTyping       = "user-typing"
)

// Frame is the wire envelope for every relay event, both directions.
// Data stays raw so opaque payloads (deltas, snapshots) pass through
// byte-for-byte.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewFrame(event string, v any) Frame {
	b, err := json.Marshal(v)
	if err != nil {
		return Frame{Type: event}
	}
	return Frame{Type: event, Data: b}
}

const (
	MessageKindUser   = "user"
	MessageKindSystem = "system"

	StatusDelivered = "delivered"
)

// ChatMessage is one entry in a room's bounded message log.
type ChatMessage struct {
	ID        string `json:"id"`
	Kind      string `json:"type"`
	User      string `json:"user,omitempty"` // empty for system messages
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status,omitempty"`
	RoomID    string `json:"roomId"`
}

func NewUserMessage(roomID, author, body string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Kind:      MessageKindUser,
		User:      author,
		Message:   body,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    StatusDelivered,
		RoomID:    roomID,
	}
}

func NewSystemMessage(roomID, body string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Kind:      MessageKindSystem,
		Message:   body,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RoomID:    roomID,
	}
}

// ChatUser is the descriptor a client supplies when joining a room.
type ChatUser struct {
	Name  string `json:"name"`
	Photo string `json:"photo,omitempty"`
}

// Presence is a connection's visible membership record in a chat room.
// Online is always true while present; there is no away state.
type Presence struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Photo    string    `json:"photo,omitempty"`
	Online   bool      `json:"online"`
	JoinedAt time.Time `json:"joinedAt"`
}

/*** Inbound payloads ***/

type SaveDocumentPayload struct {
	DocID string          `json:"docId"`
	Data  json.RawMessage `json:"data"`
}

type JoinRoomPayload struct {
	RoomID string   `json:"roomId"`
	User   ChatUser `json:"user"`
}

type SendMessagePayload struct {
	Message string `json:"message"`
	RoomID  string `json:"roomId"`
}

type TypingPayload struct {
	RoomID string `json:"roomId"`
}

/*** Outbound payloads ***/

// RoomData is the snapshot view sent to a joining connection only.
type RoomData struct {
	Users    []Presence    `json:"users"`
	Messages []ChatMessage `json:"messages"`
}

// MemberEvent carries the affected presence plus the room's member list,
// used for both user-joined and user-left.
type MemberEvent struct {
	User  Presence   `json:"user"`
	Users []Presence `json:"users"`
}

type TypingEvent struct {
	User   string `json:"user"`
	Typing bool   `json:"typing"`
}

type Receipt struct {
	MessageID string `json:"messageId"`
}

// HealthStatus is the read-only probe over the room registry.
type HealthStatus struct {
	Status          string `json:"status"`
	Timestamp       string `json:"timestamp"`
	ActiveDocuments int    `json:"activeDocuments"`
	ActiveChatRooms int    `json:"activeChatRooms"`
}
