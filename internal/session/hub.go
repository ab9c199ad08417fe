package session

import "sync"

// Hub is the process-wide room registry: document id -> Document and
// chat room id -> ChatRoom. Entries are created lazily on first access and
// never deleted; anything touched lives until the process restarts.
type Hub struct {
	mu    sync.RWMutex
	docs  map[string]*Document
	rooms map[string]*ChatRoom
}

func NewHub() *Hub {
	return &Hub{
		docs:  make(map[string]*Document),
		rooms: make(map[string]*ChatRoom),
	}
}

func (h *Hub) GetOrCreateDocument(id string) *Document {
	h.mu.Lock()
	defer h.mu.Unlock()
	if d, ok := h.docs[id]; ok {
		return d
	}
	d := NewDocument(id)
	h.docs[id] = d
	return d
}

func (h *Hub) GetOrCreateChatRoom(id string) *ChatRoom {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[id]; ok {
		return r
	}
	r := NewChatRoom(id)
	h.rooms[id] = r
	return r
}

// Stats reports live registry counts for the health probe.
func (h *Hub) Stats() (documents, chatRooms int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.docs), len(h.rooms)
}
