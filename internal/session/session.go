package session

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"collabrelay/internal/metrics"
	"collabrelay/internal/models"
)

// SnapshotStore persists document snapshots outside the relay's memory.
// Failures are logged and swallowed; the next periodic save overwrites with
// a fresher snapshot anyway.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, docID string, data []byte) error
}

// Session binds one connection to at most one document subscription and at
// most one (room, user) pair. All methods are called from the connection's
// own read loop, so per-session state needs no locking; cross-connection
// state is guarded by the per-document and per-room mutexes.
type Session struct {
	client *Client
	hub    *Hub
	store  SnapshotStore
	log    *zap.Logger

	doc    *Document
	room   *ChatRoom
	user   *models.ChatUser
	closed bool
}

func NewSession(client *Client, hub *Hub, store SnapshotStore, log *zap.Logger) *Session {
	return &Session{client: client, hub: hub, store: store, log: log}
}

func (s *Session) Client() *Client { return s.client }

// JoinDocument subscribes the connection to a document's broadcast group and
// delivers the current snapshot to the joiner only. A connection watches at
// most one document; any prior subscription is torn down first.
func (s *Session) JoinDocument(docID string) {
	if s.closed || docID == "" {
		return
	}
	if s.doc != nil {
		s.doc.Unsubscribe(s.client)
		s.doc = nil
	}
	doc := s.hub.GetOrCreateDocument(docID)
	doc.Subscribe(s.client)
	s.doc = doc
	s.client.Send(models.Frame{Type: models.EventLoadDocument, Data: doc.Snapshot()})
}

// RelayDelta forwards an opaque delta verbatim to every other subscriber of
// the session's document. No-op without an active subscription; the delta is
// never validated or stored.
func (s *Session) RelayDelta(delta json.RawMessage) {
	if s.closed || s.doc == nil {
		return
	}
	s.doc.Broadcast(s.client, models.Frame{Type: models.EventReceiveChanges, Data: delta})
}

// SaveDocument overwrites the in-memory snapshot and writes it through to the
// durable store. Driven by the client's own periodic timer; the payload is
// stored as given even if stale relative to unseen deltas.
func (s *Session) SaveDocument(ctx context.Context, docID string, data json.RawMessage) {
	if s.closed || docID == "" {
		return
	}
	s.hub.GetOrCreateDocument(docID).SetSnapshot(data)
	if s.store == nil {
		return
	}
	err := s.store.SaveSnapshot(ctx, docID, data)
	metrics.SnapshotSaved(err)
	if err != nil {
		s.log.Error("persist snapshot", zap.String("docId", docID), zap.Error(err))
	}
}

// JoinRoom registers the connection's presence, replies with the room-data
// snapshot view (member list plus recent history, including this join's
// system message), notifies the rest of the room and announces the join.
func (s *Session) JoinRoom(roomID string, user models.ChatUser) {
	if s.closed || roomID == "" || user.Name == "" {
		return
	}
	if s.room != nil {
		s.leaveRoom()
	}
	room := s.hub.GetOrCreateChatRoom(roomID)
	presence := models.Presence{
		ID:       s.client.ID,
		Name:     user.Name,
		Photo:    user.Photo,
		Online:   true,
		JoinedAt: time.Now().UTC(),
	}
	room.Join(s.client, presence)
	s.room = room
	s.user = &user

	joined := models.NewSystemMessage(room.ID, user.Name+" joined the conversation")
	room.Append(joined)

	s.client.Send(models.NewFrame(models.EventRoomData, models.RoomData{
		Users:    room.Members(),
		Messages: room.History(historyWindow),
	}))
	room.Broadcast(s.client, models.NewFrame(models.EventUserJoined, models.MemberEvent{
		User:  presence,
		Users: room.Members(),
	}))
	room.BroadcastAll(models.NewFrame(models.EventNewMessage, joined))
}

// SendMessage appends a delivered user message to the bound room, broadcasts
// it to every member including the sender and acknowledges the sender with a
// delivery receipt. No-op without a bound user and room.
func (s *Session) SendMessage(body string) {
	if s.closed || s.room == nil || s.user == nil || body == "" {
		return
	}
	msg := models.NewUserMessage(s.room.ID, s.user.Name, body)
	s.room.Append(msg)
	s.room.BroadcastAll(models.NewFrame(models.EventNewMessage, msg))
	s.client.Send(models.NewFrame(models.EventMessageDelivered, models.Receipt{MessageID: msg.ID}))
}

// TypingStart flags the session's display name as typing and notifies the
// rest of the room. There is no server-side timeout; a client that goes
// silent without TypingStop leaves a stale entry until disconnect.
func (s *Session) TypingStart() { s.setTyping(true) }

// TypingStop clears the typing flag and notifies the rest of the room.
func (s *Session) TypingStop() { s.setTyping(false) }

func (s *Session) setTyping(typing bool) {
	if s.closed || s.room == nil || s.user == nil {
		return
	}
	s.room.SetTyping(s.user.Name, typing)
	s.room.Broadcast(s.client, models.NewFrame(models.EventUserTyping, models.TypingEvent{
		User:   s.user.Name,
		Typing: typing,
	}))
}

// Disconnect unwinds both bindings. Idempotent and total: a connection that
// never joined anything disconnects without effect, and each cleanup is
// individually a no-op when not applicable.
func (s *Session) Disconnect() {
	if s.closed {
		return
	}
	s.closed = true
	if s.doc != nil {
		// the document entry stays in the registry even when empty
		s.doc.Unsubscribe(s.client)
		s.doc = nil
	}
	s.leaveRoom()
}

func (s *Session) leaveRoom() {
	room := s.room
	s.room = nil
	s.user = nil
	if room == nil {
		return
	}
	presence, ok := room.Leave(s.client)
	if !ok {
		return
	}
	room.BroadcastAll(models.NewFrame(models.EventUserLeft, models.MemberEvent{
		User:  presence,
		Users: room.Members(),
	}))
	left := models.NewSystemMessage(room.ID, presence.Name+" left the conversation")
	room.Append(left)
	room.BroadcastAll(models.NewFrame(models.EventNewMessage, left))
}
