package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	pingInterval   = 25 * time.Second
	writeWait      = 10 * time.Second
	maxListenDelay = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamMessage is one frame on the ledger stream.
type streamMessage struct {
	Type  string       `json:"type"` // "snapshot" or "error"
	Day   *dailyLedger `json:"day,omitempty"`
	Error string       `json:"error,omitempty"`
}

// streamLedger upgrades to a websocket and pushes a fresh day snapshot on
// connect and after every change to that day's entries or the user's targets.
// GET /api/ledger/stream?date=YYYY-MM-DD (defaults to today).
func (h *Handler) streamLedger(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, err := h.ledger.resolveDate(c, userID, c.Query("date"))
	if err != nil {
		respondError(c, err)
		return
	}

	// Subscribe before the first snapshot so no change falls in between.
	events, unsubscribe := h.feed.subscribe(userID)
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[streamLedger] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// read loop ends on client close/error
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		msg := streamMessage{Type: "snapshot"}
		day, err := h.ledger.getDay(ctx, userID, date)
		if err != nil {
			log.Printf("[streamLedger] snapshot for user %d on %s: %v", userID, date, err)
			msg = streamMessage{Type: "error", Error: "storage unavailable, snapshot skipped"}
		} else {
			msg.Day = &day
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}
	if err := send(); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !affectsDay(ev, date) {
				continue
			}
			if err := send(); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// affectsDay reports whether ev changes the snapshot for date.
func affectsDay(ev ledgerEvent, date string) bool {
	switch ev.Kind {
	case eventEntries:
		return ev.Date == date
	case eventTargets:
		return true
	}
	return false
}

// listenForChanges keeps the store's change listener running, reconnecting
// with capped exponential backoff until ctx is done.
func listenForChanges(ctx context.Context, n changeNotifier, feed *changeFeed) {
	delay := time.Second
	for {
		err := n.listen(ctx, feed.publish)
		if ctx.Err() != nil {
			return
		}
		log.Printf("[listenForChanges] listener stopped: %v; retrying in %s", err, delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxListenDelay {
			delay = maxListenDelay
		}
	}
}
