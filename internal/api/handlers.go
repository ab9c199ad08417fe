package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collabrelay/internal/metrics"
	"collabrelay/internal/models"
	"collabrelay/internal/session"
)

// Store is what the handlers need from the durable snapshot store.
type Store interface {
	SaveSnapshot(ctx context.Context, docID string, data []byte) error
	Ping(ctx context.Context) error
}

type Handlers struct {
	log   *zap.Logger
	hub   *session.Hub
	store Store
}

func NewHandlers(log *zap.Logger, store Store) *Handlers {
	return &Handlers{
		log:   log,
		hub:   session.NewHub(),
		store: store,
	}
}

// Hub exposes the registry for tests.
func (h *Handlers) Hub() *session.Hub { return h.hub }

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// RelayWS upgrades the connection and runs its read loop. The loop is the
// per-connection dispatcher: one inbound frame is processed to completion
// before the next is read, so per-sender arrival order is preserved to every
// receiver.
func (h *Handlers) RelayWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := session.NewClient(conn)
	sess := session.NewSession(client, h.hub, h.storeForSession(), h.log)

	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()
	defer sess.Disconnect()

	for {
		var frame models.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		h.dispatch(r.Context(), sess, frame)
	}
}

func (h *Handlers) storeForSession() session.SnapshotStore {
	if h.store == nil {
		return nil
	}
	return h.store
}

// dispatch routes one inbound frame. Malformed or missing payload fields
// drop the frame silently; nothing is surfaced to other clients.
func (h *Handlers) dispatch(ctx context.Context, sess *session.Session, frame models.Frame) {
	metrics.EventReceived(frame.Type)

	switch frame.Type {
	case models.EventJoinDocument:
		var docID string
		if err := json.Unmarshal(frame.Data, &docID); err != nil {
			return
		}
		sess.JoinDocument(docID)

	case models.EventSendChanges:
		sess.RelayDelta(frame.Data)

	case models.EventSaveDocument:
		var p models.SaveDocumentPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || len(p.Data) == 0 {
			return
		}
		sess.SaveDocument(ctx, p.DocID, p.Data)

	case models.EventJoinRoom:
		var p models.JoinRoomPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return
		}
		sess.JoinRoom(p.RoomID, p.User)

	case models.EventSendMessage:
		var p models.SendMessagePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return
		}
		sess.SendMessage(p.Message)

	case models.EventTypingStart:
		sess.TypingStart()

	case models.EventTypingStop:
		sess.TypingStop()

	default:
		h.log.Debug("dropped unknown frame", zap.String("type", frame.Type))
	}
}

/*** Auxiliary read-only surface over the registry ***/

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	docs, rooms := h.hub.Stats()
	status := "OK"
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "DEGRADED"
		}
	}
	writeJSON(w, models.HealthStatus{
		Status:          status,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		ActiveDocuments: docs,
		ActiveChatRooms: rooms,
	})
}

// GetDocument returns the current snapshot, auto-creating the document the
// same way a join would.
func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc := h.hub.GetOrCreateDocument(chi.URLParam(r, "id"))
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc.Snapshot())
}

func (h *Handlers) RoomMessages(w http.ResponseWriter, r *http.Request) {
	room := h.hub.GetOrCreateChatRoom(chi.URLParam(r, "roomId"))
	writeJSON(w, room.Messages())
}

func (h *Handlers) RoomUsers(w http.ResponseWriter, r *http.Request) {
	room := h.hub.GetOrCreateChatRoom(chi.URLParam(r, "roomId"))
	writeJSON(w, room.Members())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
