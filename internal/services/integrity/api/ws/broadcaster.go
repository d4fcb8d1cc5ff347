package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strikeline/arena/internal/match/fault"
	"github.com/strikeline/arena/internal/match/verdict"
)

const (
	// clientQueueDepth bounds each connection's pending outbound messages.
	clientQueueDepth = 64
	writeTimeout     = 5 * time.Second
)

// client owns one connection's outbound queue. A dedicated writer goroutine
// drains the queue, so enqueueing never blocks the caller; a client that
// stops reading fills its queue and loses messages instead of stalling the
// session's tick loop.
type client struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		out:  make(chan []byte, clientQueueDepth),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.stop()
				return
			}
		}
	}
}

// stop ends the writer goroutine. Safe to call more than once.
func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// send enqueues one message without blocking. Messages to a stopped or
// backlogged client are dropped; the read loop notices dead connections.
func (c *client) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
	case c.out <- data:
	default:
	}
	return nil
}

// Broadcaster fans session output out to the match's connected clients. It
// implements the session sink; every delivery is an enqueue onto a bounded
// per-client queue, never a direct socket write.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[string]*client
}

// NewBroadcaster creates an empty broadcaster for one match.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[string]*client)}
}

// Attach registers a player's connection, replacing and stopping any
// previous one, and starts its writer.
func (b *Broadcaster) Attach(playerID string, conn *websocket.Conn) *client {
	c := newClient(conn)
	b.mu.Lock()
	old := b.clients[playerID]
	b.clients[playerID] = c
	b.mu.Unlock()
	if old != nil {
		old.stop()
	}
	return c
}

// Detach stops a client's writer and removes it if still registered.
func (b *Broadcaster) Detach(playerID string, c *client) {
	b.mu.Lock()
	if b.clients[playerID] == c {
		delete(b.clients, playerID)
	}
	b.mu.Unlock()
	c.stop()
}

func (b *Broadcaster) sendTo(playerID string, v any) {
	b.mu.Lock()
	c := b.clients[playerID]
	b.mu.Unlock()
	if c != nil {
		_ = c.send(v)
	}
}

func (b *Broadcaster) broadcast(v any) {
	b.mu.Lock()
	targets := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.Unlock()
	for _, c := range targets {
		_ = c.send(v)
	}
}

// ActionVerdict delivers the validation outcome to the acting player.
func (b *Broadcaster) ActionVerdict(playerID string, tick uint64, v fault.Verdict) {
	b.sendTo(playerID, verdictMessage{
		Ver:      protocolVersion,
		Type:     messageTypeVerdict,
		PlayerID: playerID,
		Tick:     tick,
		Accepted: v.Accepted,
		Kind:     string(v.Kind),
		Severity: severityLabel(v),
		Detail:   v.Detail,
	})
}

func severityLabel(v fault.Verdict) string {
	if v.Accepted {
		return ""
	}
	return v.Severity.String()
}

// StateHash broadcasts the periodic authoritative state hash.
func (b *Broadcaster) StateHash(tick uint64, hash string) {
	b.broadcast(stateHashMessage{
		Ver:  protocolVersion,
		Type: messageTypeStateHash,
		Tick: tick,
		Hash: hash,
	})
}

// PlayerPenalized announces a penalty to the whole match.
func (b *Broadcaster) PlayerPenalized(playerID string, violations int) {
	b.broadcast(penaltyMessage{
		Ver:        protocolVersion,
		Type:       messageTypePenalty,
		PlayerID:   playerID,
		Violations: violations,
	})
}

// PlayerSuspended announces a suspension to the whole match.
func (b *Broadcaster) PlayerSuspended(playerID string) {
	b.broadcast(suspensionMessage{
		Ver:      protocolVersion,
		Type:     messageTypeSuspension,
		PlayerID: playerID,
	})
}

// MatchEnded delivers the terminal verdict to every connected client.
func (b *Broadcaster) MatchEnded(v verdict.Verdict) {
	b.broadcast(matchEndedMessage{
		Ver:            protocolVersion,
		Type:           messageTypeMatchEnded,
		MatchID:        v.MatchID,
		Outcome:        string(v.Outcome),
		CommittedHash:  v.CommittedHash,
		FairnessScore:  v.Fairness.Score,
		FairnessRating: string(v.Fairness.Rating),
		RewardEligible: v.RewardEligible(),
		Violations:     v.ViolationCount(),
	})
}
