package session

import (
	"sync"

	"collabrelay/internal/models"
)

const (
	// messageRetention caps the per-room log; oldest entries are evicted first.
	messageRetention = 100
	// historyWindow bounds the initial room-data payload for a joiner.
	historyWindow = 50
)

// ChatRoom holds membership, the bounded message log and the typing set for
// one room. The typing set is keyed by display name, not connection id, so
// two connections sharing a name collapse to one entry.
type ChatRoom struct {
	ID       string
	mu       sync.Mutex
	messages []models.ChatMessage
	members  map[*Client]models.Presence
	typing   map[string]struct{}
}

func NewChatRoom(id string) *ChatRoom {
	return &ChatRoom{
		ID:      id,
		members: make(map[*Client]models.Presence),
		typing:  make(map[string]struct{}),
	}
}

func (r *ChatRoom) Join(c *Client, p models.Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[c] = p
}

// Leave removes the connection's presence and clears its display name from
// the typing set. Reports false if the connection was not a member.
func (r *ChatRoom) Leave(c *Client) (models.Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[c]
	if !ok {
		return models.Presence{}, false
	}
	delete(r.members, c)
	delete(r.typing, p.Name)
	return p, true
}

func (r *ChatRoom) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *ChatRoom) Members() []models.Presence {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Presence, 0, len(r.members))
	for _, p := range r.members {
		out = append(out, p)
	}
	return out
}

// Append adds a message to the log, evicting the oldest entries beyond the
// retention cap. len(messages) <= 100 holds after every append.
func (r *ChatRoom) Append(msg models.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	if n := len(r.messages); n > messageRetention {
		r.messages = append(r.messages[:0:0], r.messages[n-messageRetention:]...)
	}
}

// Messages returns a copy of the full retained log in arrival order.
func (r *ChatRoom) Messages() []models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ChatMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

// History returns the most recent limit messages in arrival order.
func (r *ChatRoom) History(limit int) []models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

func (r *ChatRoom) SetTyping(name string, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if typing {
		r.typing[name] = struct{}{}
	} else {
		delete(r.typing, name)
	}
}

func (r *ChatRoom) TypingNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.typing))
	for name := range r.typing {
		out = append(out, name)
	}
	return out
}

// Broadcast fans a frame out to every member except the sender.
func (r *ChatRoom) Broadcast(sender *Client, frame models.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.members {
		if c == sender {
			continue
		}
		c.Send(frame)
	}
}

// BroadcastAll fans a frame out to every member including the sender.
func (r *ChatRoom) BroadcastAll(frame models.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.members {
		c.Send(frame)
	}
}
