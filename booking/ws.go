package booking

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"gameplace/models"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// writeWait bounds each write so a subscriber that stops reading is dropped.
const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans reservation updates out to websocket subscribers of a device type.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string][]*websocket.Conn
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string][]*websocket.Conn)}
}

// update is what subscribers see; no user data leaves the server.
type update struct {
	Type          string `json:"type"`
	ReservationID string `json:"reservationId"`
	DeviceTypeID  string `json:"deviceTypeId"`
	Status        any    `json:"status,omitempty"`
	Date          any    `json:"date,omitempty"`
	StartHour     any    `json:"startHour,omitempty"`
	EndHour       any    `json:"endHour,omitempty"`
	DeviceID      any    `json:"deviceId,omitempty"`
}

// GET /ws/reservations/:typeId
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	key := ps.ByName("typeId")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		return
	}

	h.mu.Lock()
	h.subscribers[key] = append(h.subscribers[key], conn)
	h.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	conns := h.subscribers[key]
	newList := make([]*websocket.Conn, 0, len(conns))
	for _, c := range conns {
		if c != conn {
			newList = append(newList, c)
		}
	}
	if len(newList) == 0 {
		delete(h.subscribers, key)
	} else {
		h.subscribers[key] = newList
	}
	h.mu.Unlock()

	conn.Close()
}

// Subscribers reports how many connections listen on a device type.
func (h *Hub) Subscribers(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[key])
}

// Send implements reservation.Notifier for single-node deployments.
func (h *Hub) Send(ctx context.Context, ev models.ReservationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.Broadcast(ev)
	return nil
}

// Broadcast pushes ev to every subscriber of its device type.
func (h *Hub) Broadcast(ev models.ReservationEvent) {
	u := update{
		Type:          ev.Type,
		ReservationID: ev.ReservationID,
		DeviceTypeID:  ev.DeviceTypeID,
		Status:        ev.Payload["status"],
		Date:          ev.Payload["date"],
		StartHour:     ev.Payload["startHour"],
		EndHour:       ev.Payload["endHour"],
		DeviceID:      ev.Payload["deviceId"],
	}
	val, err := json.Marshal(u)
	if err != nil {
		log.Printf("[Booking] encode update %s: %v", ev.ReservationID, err)
		return
	}
	h.broadcast(ev.DeviceTypeID, val)
}

func (h *Hub) broadcast(key string, val []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.subscribers[key]
	newList := conns[:0]

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, val); err == nil {
			newList = append(newList, conn)
		} else {
			conn.Close()
		}
	}

	h.subscribers[key] = newList
}
