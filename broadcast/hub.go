package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 5 * time.Second

// Viewer is one connected remote client. Writes from the broadcast loop and
// control replies share the connection, so every write holds writeMu.
type Viewer struct {
	ID      uuid.UUID
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewViewer(conn *websocket.Conn) *Viewer {
	return &Viewer{ID: uuid.New(), conn: conn}
}

func (v *Viewer) send(payload []byte) error {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return v.conn.WriteMessage(websocket.TextMessage, payload)
}

func (v *Viewer) sendJSON(value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return v.send(payload)
}

// Hub tracks the connected viewer set. Membership changes on connect,
// disconnect and failed broadcast sends; there is no ordering among viewers.
type Hub struct {
	mu      sync.Mutex
	viewers map[uuid.UUID]*Viewer
}

func NewHub() *Hub {
	return &Hub{viewers: make(map[uuid.UUID]*Viewer)}
}

func (h *Hub) Add(v *Viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.viewers[v.ID] = v
}

// Remove deregisters a viewer and closes its connection.
func (h *Hub) Remove(id uuid.UUID) {
	h.mu.Lock()
	v := h.viewers[id]
	delete(h.viewers, id)
	h.mu.Unlock()
	if v != nil {
		v.conn.Close()
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Broadcast sends payload to every viewer concurrently, then prunes the
// viewers whose send failed. Removals are applied after the fan-out so the
// set is never mutated while it is being iterated.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	viewers := make([]*Viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	var failedMu sync.Mutex
	var failed []uuid.UUID
	for _, v := range viewers {
		wg.Add(1)
		go func(v *Viewer) {
			defer wg.Done()
			if err := v.send(payload); err != nil {
				failedMu.Lock()
				failed = append(failed, v.ID)
				failedMu.Unlock()
			}
		}(v)
	}
	wg.Wait()

	for _, id := range failed {
		log.Info().Str("viewer", id.String()).Msg("viewer send failed, removing")
		h.Remove(id)
	}
}
