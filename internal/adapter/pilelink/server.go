package pilelink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/observability/telemetry"
	"github.com/seu-repo/echarge/internal/ports"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StationCore is the slice of the station the pile link needs: liveness
// reporting and the fault escalation path.
type StationCore interface {
	Heartbeat(pileID string, ts time.Time) error
	SetFault(ctx context.Context, pileID, reason string) (*ports.FaultResult, error)
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (c *client) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Server speaks the pile-link protocol with physical pile simulators over
// WebSocket. Inbound telemetry feeds liveness; outbound commands are sent
// by the Commander.
type Server struct {
	core     StationCore
	clients  map[string]*client
	mu       sync.RWMutex
	pending  map[string]chan AckPayload
	pendMu   sync.Mutex
	httpSrv  *http.Server
	log      *zap.Logger
}

func NewServer(core StationCore, log *zap.Logger) *Server {
	return &Server{
		core:    core,
		clients: make(map[string]*client),
		pending: make(map[string]chan AckPayload),
		log:     log,
	}
}

// Start serves the pile link on the given port until Stop.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/pile-link/", s.handleWebSocket)

	s.httpSrv = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	s.log.Info("Starting pile-link WebSocket server", zap.String("addr", s.httpSrv.Addr))
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes the listener and all pile connections.
func (s *Server) Stop() {
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		c.conn.Close()
		delete(s.clients, id)
	}
	s.log.Info("pile-link server stopped")
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	pileID := r.URL.Path[len("/pile-link/"):]
	if pileID == "" {
		http.Error(w, "missing pile ID", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{conn: conn}
	s.mu.Lock()
	s.clients[pileID] = cl
	s.mu.Unlock()
	telemetry.PileLinkConnectionsActive.Inc()

	s.log.Info("pile connected", zap.String("pile_id", pileID))

	defer func() {
		conn.Close()
		s.mu.Lock()
		if s.clients[pileID] == cl {
			delete(s.clients, pileID)
		}
		s.mu.Unlock()
		telemetry.PileLinkConnectionsActive.Dec()
		s.log.Info("pile disconnected", zap.String("pile_id", pileID))
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Error("WebSocket read error", zap.Error(err))
			}
			break
		}
		s.processMessage(pileID, cl, message)
	}
}

// processMessage routes one inbound envelope. A malformed or unexpected
// message is logged and dropped; it never mutates station state.
func (s *Server) processMessage(pileID string, cl *client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Warn("invalid pile-link message", zap.String("pile_id", pileID), zap.Error(err))
		return
	}
	if env.PileID != "" && env.PileID != pileID {
		s.log.Warn("pile id mismatch on link",
			zap.String("connection", pileID),
			zap.String("claimed", env.PileID),
		)
		return
	}
	telemetry.RecordPileLinkMessage(string(env.Type), true)

	switch env.Type {
	case TypeRegister:
		var p RegisterPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.log.Warn("invalid register payload", zap.String("pile_id", pileID), zap.Error(err))
			return
		}
		// Registration is idempotent: the roster is fixed, so a register
		// from a known pile only refreshes liveness.
		if err := s.core.Heartbeat(pileID, time.Now()); err != nil {
			s.log.Warn("register from unknown pile", zap.String("pile_id", pileID))
			return
		}
		cl.write(Envelope{Type: TypeAck, PileID: pileID})
		s.log.Info("pile registered",
			zap.String("pile_id", pileID),
			zap.String("pile_type", p.PileType),
			zap.Float64("power_kw", p.PowerKW),
		)

	case TypeHeartbeat:
		var p HeartbeatPayload
		ts := time.Now()
		if err := json.Unmarshal(env.Payload, &p); err == nil && !p.TS.IsZero() {
			ts = p.TS
		}
		if err := s.core.Heartbeat(pileID, ts); err != nil {
			s.log.Warn("heartbeat from unknown pile", zap.String("pile_id", pileID))
		}

	case TypeStatusReport, TypeProgress, TypeComplete:
		// Telemetry mirrors of the core's own integration; counted and
		// logged, never written back into sessions.
		s.log.Debug("pile telemetry", zap.String("pile_id", pileID), zap.String("type", string(env.Type)))

	case TypeAck:
		var p AckPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.resolveAck(p)

	default:
		s.log.Warn("unknown pile-link message type",
			zap.String("pile_id", pileID),
			zap.String("type", string(env.Type)),
		)
	}
}

func (s *Server) resolveAck(p AckPayload) {
	s.pendMu.Lock()
	ch, ok := s.pending[p.CommandID]
	if ok {
		delete(s.pending, p.CommandID)
	}
	s.pendMu.Unlock()
	if ok {
		ch <- p
	}
}

// send delivers one command envelope and waits for its ack.
func (s *Server) send(ctx context.Context, pileID string, cmd Command, timeout time.Duration) error {
	s.mu.RLock()
	cl, ok := s.clients[pileID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("pile %s not connected", pileID)
	}

	ackCh := make(chan AckPayload, 1)
	s.pendMu.Lock()
	s.pending[cmd.ID] = ackCh
	s.pendMu.Unlock()
	defer func() {
		s.pendMu.Lock()
		delete(s.pending, cmd.ID)
		s.pendMu.Unlock()
	}()

	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if err := cl.write(Envelope{Type: TypeCommand, PileID: pileID, Payload: payload}); err != nil {
		return fmt.Errorf("writing command to pile %s: %w", pileID, err)
	}
	telemetry.RecordPileLinkMessage(string(TypeCommand), false)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ack := <-ackCh:
		if !ack.OK {
			return fmt.Errorf("pile %s rejected command: %s", pileID, ack.Error)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("pile %s did not ack within %s", pileID, timeout)
	}
}
