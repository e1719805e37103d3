// Package messaging implements the Gateway: a single command-queue actor
// per show that serializes every Conductor.Reduce call onto one goroutine,
// persists the result, and fans the new state out to every connected
// websocket client filtered through its role's projection (spec §4.6, §5).
package messaging

import (
	"encoding/json"
	"math/rand"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/jwhector/yggdrasil/internal/domain/conductor"
	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
	"github.com/jwhector/yggdrasil/internal/domain/projection"
	"github.com/jwhector/yggdrasil/internal/infrastructure/observability/logging"
	"github.com/jwhector/yggdrasil/internal/infrastructure/persistence/store"
)

// historyLimit bounds how many past versions the Hub retains for resync
// diffing (spec §4.4, §4.6: "delta since lastVersion"). A reconnect whose
// lastVersion has aged out of this window gets a full snapshot instead
// (spec S6).
const historyLimit = 20

// TimingObserver is notified after every accepted command so it can
// re-arm its deferred ADVANCE_PHASE timer against the new state.
type TimingObserver interface {
	Observe(state *show.Show)
}

// inbound pairs a command with the response channel its submitter is
// waiting on, if any (IMPORT_STATE's HTTP handler wants the resulting
// error; websocket commands fire-and-forget).
type inbound struct {
	cmd    conductor.Command
	result chan error
}

// resyncRequest asks the Hub to resend a client its current-role view,
// computing a delta against whatever version the client claims to have
// last seen (spec §4.6, S6).
type resyncRequest struct {
	client      *Client
	lastVersion uint64
}

// Hub is the actor owning one Show's authoritative state. Exactly one
// goroutine (Run) ever touches state directly; every other access goes
// through the submit channel.
type Hub struct {
	state   *show.Show
	public  atomic.Pointer[show.Show]
	submit  chan inbound
	store   *store.Store
	logger  *logging.ChanneledLogger
	timing  TimingObserver
	rnd     *rand.Rand

	clients map[*Client]struct{}
	add     chan *Client
	remove  chan *Client
	resync  chan resyncRequest

	history []*show.Show
}

// New builds a Hub seeded with the given initial state.
func New(initial *show.Show, st *store.Store, logger *logging.ChanneledLogger) *Hub {
	h := &Hub{
		state:   initial,
		submit:  make(chan inbound, 64),
		store:   st,
		logger:  logger,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		clients: make(map[*Client]struct{}),
		add:     make(chan *Client),
		remove:  make(chan *Client),
		resync:  make(chan resyncRequest),
		history: []*show.Show{initial},
	}
	h.public.Store(initial)
	return h
}

// CurrentState returns the most recently committed state. Safe to call
// from any goroutine: the Run loop never mutates a state it has already
// published here, it only replaces the pointer with a freshly cloned one.
func (h *Hub) CurrentState() *show.Show {
	return h.public.Load()
}

// CurrentVersion returns the version of the most recently committed state.
func (h *Hub) CurrentVersion() uint64 {
	return h.public.Load().Version
}

// SetTimingObserver wires the Timing Engine in after construction to avoid
// an import cycle (the engine needs a Submitter the Hub itself provides).
func (h *Hub) SetTimingObserver(t TimingObserver) {
	h.timing = t
}

// Submit enqueues a command for serial reduction. Implements timing.Submitter.
func (h *Hub) Submit(cmd conductor.Command) {
	h.submit <- inbound{cmd: cmd}
}

// SubmitAndWait enqueues a command and blocks for its reduction error, used
// by HTTP handlers (e.g. IMPORT_STATE) that must report success/failure.
func (h *Hub) SubmitAndWait(cmd conductor.Command) error {
	result := make(chan error, 1)
	h.submit <- inbound{cmd: cmd, result: result}
	return <-result
}

// Register adds a client to the broadcast set; it may immediately receive
// its initial projection.
func (h *Hub) Register(c *Client) { h.add <- c }

// Unregister removes a client from the broadcast set.
func (h *Hub) Unregister(c *Client) { h.remove <- c }

// Resync asks the Hub to resend the client its current-role view, diffed
// against lastVersion if that version is still in the history window
// (spec §4.6, S6).
func (h *Hub) Resync(c *Client, lastVersion uint64) { h.resync <- resyncRequest{client: c, lastVersion: lastVersion} }

// Run is the actor's event loop; call it once per show in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.add:
			h.clients[c] = struct{}{}
			h.sendTo(c)

		case c := <-h.remove:
			delete(h.clients, c)
			close(c.send)

		case r := <-h.resync:
			if _, ok := h.clients[r.client]; ok {
				r.client.ackedVersion = r.lastVersion
				r.client.lastPayload = nil
				h.sendTo(r.client)
			}

		case in := <-h.submit:
			prevVersion := h.state.Version
			next, effects, err := conductor.Reduce(h.state, in.cmd, h.rnd)
			if err != nil {
				h.logger.Conductor().Error("reduce returned a programming error", "error", err.Error(), "commandType", in.cmd.Type)
				if in.result != nil {
					in.result <- err
				}
				continue
			}
			h.state = next
			h.public.Store(next)
			h.recordHistory(next)
			h.applyEffects(effects)
			if h.timing != nil && next.Version != prevVersion {
				h.timing.Observe(h.state)
			}
			if in.result != nil {
				in.result <- firstErrorEffect(effects)
			}
		}
	}
}

// recordHistory keeps a bounded trailing window of past states so a
// reconnecting client's lastVersion can sometimes be served a delta
// instead of a full snapshot.
func (h *Hub) recordHistory(next *show.Show) {
	h.history = append(h.history, next)
	if len(h.history) > historyLimit {
		h.history = h.history[len(h.history)-historyLimit:]
	}
}

// snapshotAt returns the retained state at exactly the given version, or
// nil if it has aged out of the history window.
func (h *Hub) snapshotAt(version uint64) *show.Show {
	for _, s := range h.history {
		if s.Version == version {
			return s
		}
	}
	return nil
}

func firstErrorEffect(effects []conductor.Effect) error {
	for _, e := range effects {
		if e.Kind == conductor.EffectError {
			return &conductor.Error{Code: e.Code, Message: e.Message}
		}
	}
	return nil
}

func (h *Hub) applyEffects(effects []conductor.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case conductor.EffectPersist:
			if h.store != nil {
				if err := h.store.SaveState(h.state); err != nil {
					h.logger.Database().Error("failed to persist state", "error", err.Error(), "showId", h.state.ID)
				}
			}
		case conductor.EffectBroadcast:
			h.broadcastAll()
		case conductor.EffectBroadcastTiebreak:
			h.broadcastTiebreak(e.Reason)
		case conductor.EffectForceReconnect:
			h.disconnectAll()
		case conductor.EffectError:
			// Surfaced to the originating connection by the caller via
			// SubmitAndWait; nothing to broadcast.
		}
	}
}

func (h *Hub) broadcastAll() {
	for c := range h.clients {
		h.sendTo(c)
	}
}

func (h *Hub) broadcastTiebreak(reason string) {
	for c := range h.clients {
		if c.mode == conductor.ModeAudience {
			continue
		}
		select {
		case c.send <- wireMessage{Type: "tiebreak_animation", Payload: map[string]string{"reason": reason}}:
		default:
		}
	}
}

func (h *Hub) disconnectAll() {
	for c := range h.clients {
		c.forceClose()
	}
}

// stateSyncPayload is the server->client `state_sync` message body (spec
// §6): either a full State or a Delta against whatever version the client
// last acknowledged, never both.
type stateSyncPayload struct {
	Version  uint64 `json:"version"`
	Snapshot bool   `json:"snapshot"`
	State    any    `json:"state,omitempty"`
	Delta    any    `json:"delta,omitempty"`
}

func rolePayload(state *show.Show, c *Client) any {
	switch c.mode {
	case conductor.ModeAudience:
		return projection.Audience(state, c.userID)
	case conductor.ModeProjector:
		return projection.Projector(state)
	case conductor.ModeController:
		return projection.Controller(state)
	default:
		return nil
	}
}

// sendTo pushes c's current-role view, as a delta against whatever it last
// received when one is cheaply computable, or a full snapshot otherwise
// (spec §4.4, §4.6, S6).
func (h *Hub) sendTo(c *Client) {
	payload := rolePayload(h.state, c)

	var body stateSyncPayload
	switch {
	case c.lastPayload != nil:
		// Already streaming to this connection: diff against what it was
		// last sent, regardless of the version that arrived at.
		body = stateSyncPayload{Version: h.state.Version, Snapshot: false, Delta: diffPayload(c.lastPayload, payload)}
	case c.ackedVersion > 0:
		if prior := h.snapshotAt(c.ackedVersion); prior != nil {
			body = stateSyncPayload{Version: h.state.Version, Snapshot: false, Delta: diffPayload(rolePayload(prior, c), payload)}
		} else {
			// lastVersion has aged out of the retained window (S6).
			body = stateSyncPayload{Version: h.state.Version, Snapshot: true, State: payload}
		}
	default:
		body = stateSyncPayload{Version: h.state.Version, Snapshot: true, State: payload}
	}

	c.lastPayload = payload
	c.ackedVersion = h.state.Version

	select {
	case c.send <- wireMessage{Type: "state_sync", Payload: body}:
	default:
		h.logger.Gateway().Warn("client send buffer full, dropping state push", "userId", c.userID)
	}
}

// diffPayload compares two JSON-shaped projection payloads field by field
// and returns only the entries that changed.
func diffPayload(prev, next any) map[string]any {
	prevFields := fieldMap(prev)
	nextFields := fieldMap(next)
	delta := make(map[string]any, len(nextFields))
	for k, v := range nextFields {
		if pv, ok := prevFields[k]; !ok || !reflect.DeepEqual(pv, v) {
			delta[k] = v
		}
	}
	return delta
}

func fieldMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	m := make(map[string]any)
	_ = json.Unmarshal(raw, &m)
	return m
}
