// Package ws exposes the player-facing websocket gateway of the integrity
// service. Clients submit schema-checked action envelopes and receive
// per-action verdicts, periodic state hashes, and the terminal verdict.
package ws

import (
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/strikeline/arena/internal/match/action"
	"github.com/strikeline/arena/internal/match/session"
)

// Match is the slice of a session the gateway drives.
type Match interface {
	Join(playerID, teamID string) error
	Leave(playerID string) error
	Submit(evt action.Event) error
}

// Resolver finds a live match and its broadcaster by id.
type Resolver interface {
	Match(matchID string) (Match, *Broadcaster, bool)
}

// Gateway upgrades player connections and runs their read loops.
type Gateway struct {
	resolver Resolver
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// NewGateway creates a gateway over the given match resolver.
func NewGateway(resolver Resolver, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Default()
	}
	return &Gateway{
		resolver: resolver,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handle serves one player connection: join, read loop, leave.
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("match")
	playerID := r.URL.Query().Get("id")
	teamID := r.URL.Query().Get("team")
	if matchID == "" || playerID == "" || teamID == "" {
		http.Error(w, "match, id, and team are required", http.StatusBadRequest)
		return
	}

	match, broadcaster, ok := g.resolver.Match(matchID)
	if !ok {
		http.Error(w, "unknown match", http.StatusNotFound)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Printf("upgrade failed for %s: %v", playerID, err)
		return
	}

	// A reconnect reattaches the existing membership.
	if err := match.Join(playerID, teamID); err != nil && !errors.Is(err, session.ErrAlreadyJoined) {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		_ = conn.WriteMessage(websocket.CloseMessage, message)
		_ = conn.Close()
		return
	}

	c := broadcaster.Attach(playerID, conn)
	defer func() {
		broadcaster.Detach(playerID, c)
		_ = match.Leave(playerID)
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := decodeEnvelope(payload)
		if err != nil {
			_ = c.send(rejectMessage{
				Ver:    protocolVersion,
				Type:   messageTypeReject,
				Reason: err.Error(),
			})
			continue
		}

		err = match.Submit(action.Event{
			PlayerID:  playerID,
			Tick:      env.Tick,
			Timestamp: env.Timestamp,
			Type:      action.Type(env.Action),
			TargetID:  env.TargetID,
			Params:    env.Params,
		})
		if err != nil {
			if errors.Is(err, session.ErrMatchEnded) {
				return
			}
			_ = c.send(rejectMessage{
				Ver:    protocolVersion,
				Type:   messageTypeReject,
				Reason: err.Error(),
			})
		}
	}
}

var _ session.Sink = (*Broadcaster)(nil)
