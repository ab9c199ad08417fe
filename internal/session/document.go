package session

import (
	"encoding/json"
	"sync"

	"collabrelay/internal/models"
)

const emptySnapshot = `{"ops":[{"insert":""}]}`

// Document holds the latest known snapshot of one shared document and the
// connections currently subscribed to it. The snapshot is opaque to the
// relay; deltas are never applied to it server-side, only whole-snapshot
// overwrites from save events (last writer wins).
type Document struct {
	ID          string
	mu          sync.Mutex
	snapshot    json.RawMessage
	subscribers map[*Client]struct{}
}

func NewDocument(id string) *Document {
	return &Document{
		ID:          id,
		snapshot:    json.RawMessage(emptySnapshot),
		subscribers: make(map[*Client]struct{}),
	}
}

func (d *Document) Subscribe(c *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[c] = struct{}{}
}

func (d *Document) Unsubscribe(c *Client) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subscribers, c)
	return len(d.subscribers)
}

func (d *Document) SubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subscribers)
}

func (d *Document) Snapshot() json.RawMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot
}

// SetSnapshot overwrites the stored snapshot unconditionally; there is no
// ordering check against deltas relayed in between.
func (d *Document) SetSnapshot(data json.RawMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshot = data
}

// Broadcast fans a frame out to every subscriber except the sender.
func (d *Document) Broadcast(sender *Client, frame models.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := range d.subscribers {
		if c == sender {
			continue
		}
		c.Send(frame)
	}
}
