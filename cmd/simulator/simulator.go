package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/adapter/pilelink"
)

// SimulatorConfig holds the pile simulator configuration
type SimulatorConfig struct {
	ServerURL         string
	PileID            string
	PileType          string
	PowerKW           float64
	HeartbeatInterval time.Duration
	ProgressInterval  time.Duration
}

// Simulator emulates one charging pile speaking the pile-link protocol: it
// registers, heartbeats, executes commands and reports charging progress.
type Simulator struct {
	config *SimulatorConfig
	conn   *websocket.Conn
	log    *zap.Logger

	mu           sync.Mutex
	status       string // AVAILABLE, CHARGING, FAULT, OFFLINE
	userID       string
	targetKWH    float64
	deliveredKWH float64
	startedAt    time.Time

	writeMu  sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSimulator creates a new pile simulator
func NewSimulator(config *SimulatorConfig, log *zap.Logger) *Simulator {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 10 * time.Second
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = time.Second
	}
	return &Simulator{
		config:   config,
		log:      log,
		status:   "AVAILABLE",
		stopChan: make(chan struct{}),
	}
}

// Connect dials the pile-link server and registers the pile.
func (s *Simulator) Connect() error {
	url := fmt.Sprintf("%s/%s", s.config.ServerURL, s.config.PileID)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	s.conn = conn
	s.log.Info("Connected to pile-link server",
		zap.String("url", url),
		zap.String("pile_id", s.config.PileID),
	)

	if err := s.send(pilelink.TypeRegister, pilelink.RegisterPayload{
		PileID:   s.config.PileID,
		PileType: s.config.PileType,
		PowerKW:  s.config.PowerKW,
	}); err != nil {
		return err
	}

	s.wg.Add(3)
	go s.readMessages()
	go s.heartbeatLoop()
	go s.progressLoop()
	return nil
}

// Stop stops the simulator
func (s *Simulator) Stop() {
	close(s.stopChan)
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
}

func (s *Simulator) send(msgType pilelink.MessageType, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := pilelink.Envelope{Type: msgType, PileID: s.config.PileID, Payload: data}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(env)
}

func (s *Simulator) readMessages() {
	defer s.wg.Done()

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopChan:
			default:
				s.log.Error("Read error", zap.Error(err))
			}
			return
		}
		s.handleMessage(message)
	}
}

func (s *Simulator) handleMessage(raw []byte) {
	var env pilelink.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Warn("invalid message from server", zap.Error(err))
		return
	}
	if env.Type != pilelink.TypeCommand {
		return
	}

	var cmd pilelink.Command
	if err := json.Unmarshal(env.Payload, &cmd); err != nil {
		s.log.Warn("invalid command payload", zap.Error(err))
		return
	}
	s.log.Info("command received",
		zap.String("command", string(cmd.Type)),
		zap.String("command_id", cmd.ID),
	)

	ack := pilelink.AckPayload{CommandID: cmd.ID, OK: true}
	switch cmd.Type {
	case pilelink.CommandStartCharging:
		if err := s.startCharging(cmd.UserID, cmd.TargetKWH); err != nil {
			ack.OK = false
			ack.Error = err.Error()
		}
	case pilelink.CommandStopCharging:
		s.stopCharging("CANCELLED", "user_cancel")
	case pilelink.CommandSetFault:
		s.setFault(cmd.Reason)
	case pilelink.CommandRecoverFault:
		s.recoverFault()
	case pilelink.CommandShutdown:
		s.sendAck(ack)
		s.Stop()
		return
	default:
		ack.OK = false
		ack.Error = fmt.Sprintf("unknown command %s", cmd.Type)
	}
	s.sendAck(ack)
}

func (s *Simulator) sendAck(ack pilelink.AckPayload) {
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	env := pilelink.Envelope{Type: pilelink.TypeAck, PileID: s.config.PileID, Payload: data}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.WriteJSON(env)
}

func (s *Simulator) startCharging(userID string, targetKWH float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == "FAULT" {
		return fmt.Errorf("pile is faulted")
	}
	if s.status == "CHARGING" {
		return fmt.Errorf("already charging")
	}
	s.status = "CHARGING"
	s.userID = userID
	s.targetKWH = targetKWH
	s.deliveredKWH = 0
	s.startedAt = time.Now()
	return nil
}

func (s *Simulator) stopCharging(status, reason string) {
	s.mu.Lock()
	if s.status != "CHARGING" {
		s.mu.Unlock()
		return
	}
	payload := pilelink.CompletePayload{
		PileID:       s.config.PileID,
		UserID:       s.userID,
		DeliveredKWH: s.deliveredKWH,
		StartedAt:    s.startedAt,
		EndedAt:      time.Now(),
		Status:       status,
		Reason:       reason,
	}
	s.status = "AVAILABLE"
	s.userID = ""
	s.mu.Unlock()

	s.send(pilelink.TypeComplete, payload)
}

func (s *Simulator) setFault(reason string) {
	s.stopCharging("CANCELLED", "pile_fault")
	s.mu.Lock()
	s.status = "FAULT"
	s.mu.Unlock()
	s.log.Warn("pile faulted", zap.String("reason", reason))
}

func (s *Simulator) recoverFault() {
	s.mu.Lock()
	if s.status == "FAULT" {
		s.status = "AVAILABLE"
	}
	s.mu.Unlock()
}

func (s *Simulator) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.mu.Lock()
			status := s.status
			s.mu.Unlock()
			if err := s.send(pilelink.TypeHeartbeat, pilelink.HeartbeatPayload{
				PileID: s.config.PileID,
				TS:     time.Now(),
				Status: status,
			}); err != nil {
				s.log.Warn("heartbeat failed", zap.Error(err))
			}
		}
	}
}

func (s *Simulator) progressLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Simulator) tick() {
	s.mu.Lock()
	if s.status != "CHARGING" {
		s.mu.Unlock()
		return
	}
	s.deliveredKWH = s.config.PowerKW * time.Since(s.startedAt).Hours()
	if s.deliveredKWH > s.targetKWH {
		s.deliveredKWH = s.targetKWH
	}
	payload := pilelink.ProgressPayload{
		PileID:       s.config.PileID,
		UserID:       s.userID,
		DeliveredKWH: s.deliveredKWH,
		TargetKWH:    s.targetKWH,
		ProgressPct:  s.deliveredKWH / s.targetKWH * 100,
	}
	done := s.deliveredKWH >= s.targetKWH
	s.mu.Unlock()

	s.send(pilelink.TypeProgress, payload)
	if done {
		s.stopCharging("COMPLETED", "")
	}
}
