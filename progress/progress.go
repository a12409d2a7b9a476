// Package progress implements the Observer boundary large-object
// downloads report through, plus an optional websocket transport for
// forwarding those reports to a host application, modeled on the
// teacher's LVServer stream-client registry.
package progress

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/paulbellamy/ratecounter"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Phase is one of the four states an Observer contract update reports
// (spec.md §6).
type Phase string

const (
	PhaseStarted  Phase = "started"
	PhaseRunning  Phase = "running"
	PhaseFinished Phase = "finished"
	PhaseFailed   Phase = "failed"
)

// Update is one Observer contract frame.
type Update struct {
	BytesTransferred int64     `json:"bytes_transferred"`
	BytesTotal       int64     `json:"bytes_total"`
	Percent          float64   `json:"percent"`
	Phase            Phase     `json:"phase"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at,omitempty"`
}

// Observer receives progress updates from a running transfer. The
// core (mtp) depends only on this interface, never on Hub, so the
// websocket transport stays a pluggable boundary rather than a
// dependency of the transaction engine (spec.md Design Note on
// message-passing boundaries).
type Observer interface {
	Observe(Update)
}

// Tracker accumulates the byte count for one in-flight transfer
// and emits Updates to an Observer, mirroring the counters the
// teacher keeps on LVServer (fpsRate, lrFPS) but for transfer
// throughput instead of frame rate.
type Tracker struct {
	obs   Observer
	total int64

	transferred *atomic.Int64
	rate        *ratecounter.RateCounter
	startedAt   time.Time
}

// NewTracker starts tracking a transfer of total bytes, reporting to
// obs. obs may be nil, in which case updates are dropped.
func NewTracker(obs Observer, total int64) *Tracker {
	t := &Tracker{
		obs:         obs,
		total:       total,
		transferred: atomic.NewInt64(0),
		rate:        ratecounter.NewRateCounter(time.Second),
		startedAt:   time.Now(),
	}
	t.emit(PhaseStarted, time.Time{})
	return t
}

// SetTotal updates the expected total once it becomes known — large
// downloads don't know their size until the first Data packet's
// header arrives.
func (t *Tracker) SetTotal(total int64) {
	t.total = total
}

// Add records n more bytes transferred and emits a running update.
func (t *Tracker) Add(n int) {
	t.transferred.Add(int64(n))
	t.rate.Incr(int64(n))
	t.emit(PhaseRunning, time.Time{})
}

// BytesPerSecond reports the current rolling throughput.
func (t *Tracker) BytesPerSecond() int64 {
	return t.rate.Rate()
}

// Finish emits a terminal update. ok distinguishes PhaseFinished from
// PhaseFailed.
func (t *Tracker) Finish(ok bool) {
	phase := PhaseFinished
	if !ok {
		phase = PhaseFailed
	}
	t.emit(phase, time.Now())
}

func (t *Tracker) emit(phase Phase, finishedAt time.Time) {
	if t.obs == nil {
		return
	}
	transferred := t.transferred.Load()
	var percent float64
	if t.total > 0 {
		percent = 100 * float64(transferred) / float64(t.total)
	}
	t.obs.Observe(Update{
		BytesTransferred: transferred,
		BytesTotal:       t.total,
		Percent:          percent,
		Phase:            phase,
		StartedAt:        t.startedAt,
		FinishedAt:       finishedAt,
	})
}

// Hub is a websocket-backed Observer: every Observe call is
// broadcast, JSON-encoded, to every currently connected client. It
// plays the role LVServer.streamClients plays for frames.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	log *logrus.Entry
}

// NewHub returns an empty Hub.
func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		clients: map[*websocket.Conn]bool{},
		log:     log,
	}
}

// HandleWS upgrades an HTTP connection to a websocket and registers it
// as a progress subscriber until it disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.WithError(err).Error("websocket upgrade failed")
		}
		return
	}
	h.register(conn)

	go func() {
		defer h.unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) register(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	c.Close()
}

// Observe implements Observer by broadcasting u to every subscriber.
func (h *Hub) Observe(u Update) {
	payload, err := json.Marshal(u)
	if err != nil {
		if h.log != nil {
			h.log.WithError(err).Error("failed to marshal progress update")
		}
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil && h.log != nil {
			h.log.WithError(err).Warn("failed to push progress update")
		}
	}
}
