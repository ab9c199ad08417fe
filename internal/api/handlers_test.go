package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collabrelay/internal/models"
	"collabrelay/internal/session"
)

type stubStore struct {
	mu      sync.Mutex
	pingErr error
	saved   map[string][]byte
}

func newStubStore() *stubStore { return &stubStore{saved: make(map[string][]byte)} }

func (s *stubStore) SaveSnapshot(_ context.Context, docID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[docID] = data
	return nil
}

func (s *stubStore) get(docID string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[docID]
}

func (s *stubStore) Ping(context.Context) error { return s.pingErr }

func newTestHandlers() *Handlers { return NewHandlers(zap.NewNop(), nil) }

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestHealthReportsRegistryCounts(t *testing.T) {
	h := newTestHandlers()
	h.Hub().GetOrCreateDocument("d1")
	h.Hub().GetOrCreateChatRoom("r1")
	h.Hub().GetOrCreateChatRoom("r2")

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var status models.HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if status.Status != "OK" {
		t.Fatalf("expected OK, got %q", status.Status)
	}
	if status.ActiveDocuments != 1 || status.ActiveChatRooms != 2 {
		t.Fatalf("unexpected counts: %#v", status)
	}
}

func TestHealthDegradedWhenStoreUnreachable(t *testing.T) {
	store := newStubStore()
	store.pingErr = errors.New("down")
	h := NewHandlers(zap.NewNop(), store)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var status models.HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if status.Status != "DEGRADED" {
		t.Fatalf("expected DEGRADED, got %q", status.Status)
	}
}

func TestGetDocumentAutoCreates(t *testing.T) {
	h := newTestHandlers()

	rec := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/documents/d1", nil), "id", "d1")
	h.GetDocument(rec, req)

	if got := strings.TrimSpace(rec.Body.String()); got != `{"ops":[{"insert":""}]}` {
		t.Fatalf("expected default snapshot, got %q", got)
	}
	if docs, _ := h.Hub().Stats(); docs != 1 {
		t.Fatalf("expected document created, got %d", docs)
	}
}

func TestRoomEndpoints(t *testing.T) {
	h := newTestHandlers()
	room := h.Hub().GetOrCreateChatRoom("r1")
	room.Append(models.NewUserMessage("r1", "Ann", "hi"))

	rec := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/chat/r1/messages", nil), "roomId", "r1")
	h.RoomMessages(rec, req)

	var msgs []models.ChatMessage
	if err := json.NewDecoder(rec.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Message != "hi" {
		t.Fatalf("unexpected messages: %#v", msgs)
	}

	rec = httptest.NewRecorder()
	req = withURLParam(httptest.NewRequest(http.MethodGet, "/api/chat/r1/users", nil), "roomId", "r1")
	h.RoomUsers(rec, req)

	var users []models.Presence
	if err := json.NewDecoder(rec.Body).Decode(&users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected empty member list, got %#v", users)
	}
}

func TestDispatchDropsMalformedPayloads(t *testing.T) {
	h := newTestHandlers()
	client := session.NewClient(nil)
	var got []models.Frame
	client.SetSendHook(func(f models.Frame) { got = append(got, f) })
	sess := session.NewSession(client, h.Hub(), nil, zap.NewNop())

	ctx := context.Background()
	h.dispatch(ctx, sess, models.Frame{Type: models.EventJoinDocument, Data: json.RawMessage(`{bad`)})
	h.dispatch(ctx, sess, models.Frame{Type: models.EventSendMessage, Data: json.RawMessage(`42`)})
	h.dispatch(ctx, sess, models.Frame{Type: "bogus-event"})

	if len(got) != 0 {
		t.Fatalf("expected malformed frames dropped silently, got %#v", got)
	}
}

/*** WebSocket end-to-end ***/

func dialWS(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame models.Frame) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write %s: %v", frame.Type, err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) models.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame models.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// expectNoFrame poisons the connection on timeout, so call it last.
func expectNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var frame models.Frame
	if err := conn.ReadJSON(&frame); err == nil {
		t.Fatalf("expected no frame, got %#v", frame)
	}
}

func TestRelayWSDocumentFlow(t *testing.T) {
	h := newTestHandlers()
	server := httptest.NewServer(http.HandlerFunc(h.RelayWS))
	defer server.Close()

	a := dialWS(t, server.URL)
	b := dialWS(t, server.URL)

	writeFrame(t, a, models.NewFrame(models.EventJoinDocument, "d1"))
	if loaded := readFrame(t, a); loaded.Type != models.EventLoadDocument {
		t.Fatalf("expected load-document, got %#v", loaded)
	}
	writeFrame(t, b, models.NewFrame(models.EventJoinDocument, "d1"))
	if loaded := readFrame(t, b); string(loaded.Data) != `{"ops":[{"insert":""}]}` {
		t.Fatalf("expected empty default snapshot, got %s", loaded.Data)
	}

	delta := json.RawMessage(`{"insert":"hi"}`)
	writeFrame(t, a, models.Frame{Type: models.EventSendChanges, Data: delta})

	received := readFrame(t, b)
	if received.Type != models.EventReceiveChanges || string(received.Data) != string(delta) {
		t.Fatalf("expected verbatim delta relay, got %#v", received)
	}
	expectNoFrame(t, a)
}

func TestRelayWSChatFlow(t *testing.T) {
	h := newTestHandlers()
	server := httptest.NewServer(http.HandlerFunc(h.RelayWS))
	defer server.Close()

	ann := dialWS(t, server.URL)
	bo := dialWS(t, server.URL)

	writeFrame(t, ann, models.NewFrame(models.EventJoinRoom, models.JoinRoomPayload{
		RoomID: "r1", User: models.ChatUser{Name: "Ann"},
	}))
	roomData := readFrame(t, ann)
	var data models.RoomData
	if err := json.Unmarshal(roomData.Data, &data); err != nil {
		t.Fatalf("decode room-data: %v", err)
	}
	if len(data.Users) != 1 || len(data.Messages) != 1 {
		t.Fatalf("expected 1 user and the join message, got %#v", data)
	}
	if joined := readFrame(t, ann); joined.Type != models.EventNewMessage {
		t.Fatalf("expected join system message, got %#v", joined)
	}

	writeFrame(t, bo, models.NewFrame(models.EventJoinRoom, models.JoinRoomPayload{
		RoomID: "r1", User: models.ChatUser{Name: "Bo"},
	}))
	userJoined := readFrame(t, ann)
	if userJoined.Type != models.EventUserJoined {
		t.Fatalf("expected user-joined, got %#v", userJoined)
	}
	var ev models.MemberEvent
	if err := json.Unmarshal(userJoined.Data, &ev); err != nil {
		t.Fatalf("decode user-joined: %v", err)
	}
	if ev.User.Name != "Bo" || len(ev.Users) != 2 {
		t.Fatalf("unexpected user-joined payload: %#v", ev)
	}
	if sys := readFrame(t, ann); sys.Type != models.EventNewMessage {
		t.Fatalf("expected Bo's join message, got %#v", sys)
	}
	readFrame(t, bo) // room-data
	readFrame(t, bo) // own join system message

	writeFrame(t, bo, models.NewFrame(models.EventSendMessage, models.SendMessagePayload{
		RoomID: "r1", Message: "hello",
	}))
	annMsg := readFrame(t, ann)
	if annMsg.Type != models.EventNewMessage {
		t.Fatalf("expected new-message for Ann, got %#v", annMsg)
	}
	if boMsg := readFrame(t, bo); boMsg.Type != models.EventNewMessage {
		t.Fatalf("expected new-message echo for sender, got %#v", boMsg)
	}
	if receipt := readFrame(t, bo); receipt.Type != models.EventMessageDelivered {
		t.Fatalf("expected delivery receipt, got %#v", receipt)
	}

	// transport-level disconnect unwinds membership and announces departure
	_ = bo.Close()
	if left := readFrame(t, ann); left.Type != models.EventUserLeft {
		t.Fatalf("expected user-left, got %#v", left)
	}
	if sys := readFrame(t, ann); sys.Type != models.EventNewMessage {
		t.Fatalf("expected departure system message, got %#v", sys)
	}
}

func TestRelayWSSaveDocumentPersists(t *testing.T) {
	store := newStubStore()
	h := NewHandlers(zap.NewNop(), store)
	server := httptest.NewServer(http.HandlerFunc(h.RelayWS))
	defer server.Close()

	conn := dialWS(t, server.URL)
	writeFrame(t, conn, models.NewFrame(models.EventJoinDocument, "d1"))
	readFrame(t, conn) // load-document

	snapshot := json.RawMessage(`{"ops":[{"insert":"saved"}]}`)
	writeFrame(t, conn, models.NewFrame(models.EventSaveDocument, models.SaveDocumentPayload{
		DocID: "d1", Data: snapshot,
	}))

	deadline := time.Now().Add(2 * time.Second)
	for string(store.get("d1")) != string(snapshot) {
		if time.Now().After(deadline) {
			t.Fatalf("snapshot never persisted, store has %s", store.get("d1"))
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := h.Hub().GetOrCreateDocument("d1").Snapshot(); string(got) != string(snapshot) {
		t.Fatalf("expected in-memory snapshot replaced, got %s", got)
	}
}
