package web

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/talesmith-ai/talesmith/internal/config"
	"github.com/talesmith-ai/talesmith/internal/logger"
	"github.com/talesmith-ai/talesmith/internal/models"
	"github.com/talesmith-ai/talesmith/internal/orchestrator"
	"github.com/talesmith-ai/talesmith/internal/ratelimit"
	"github.com/talesmith-ai/talesmith/internal/session"
)

// Broker wires websocket connections to game sessions. The provider client
// and model registry are shared process-wide; history and orchestrator are
// per session.
type Broker struct {
	cfg      *config.Config
	client   orchestrator.CompletionClient
	registry *models.Registry
	store    *session.Storage
}

// NewBroker creates a broker. store may be nil to disable persistence.
func NewBroker(cfg *config.Config, client orchestrator.CompletionClient, registry *models.Registry, store *session.Storage) *Broker {
	return &Broker{
		cfg:      cfg,
		client:   client,
		registry: registry,
		store:    store,
	}
}

func (b *Broker) sessionIDs() ([]string, error) {
	if b.store == nil {
		return nil, errors.New("session persistence is disabled")
	}
	return b.store.List()
}

func (b *Broker) deleteSession(id string) error {
	if b.store == nil {
		return errors.New("session persistence is disabled")
	}
	return b.store.Delete(id)
}

// GameSession is one connection's running game: its session, its
// orchestrator, and the context its turns run under.
type GameSession struct {
	broker *Broker
	events orchestrator.Events

	mu     sync.Mutex
	sess   *session.Session
	orch   *orchestrator.Orchestrator
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGame creates a fresh game session delivering events to the given sink.
func (b *Broker) NewGame(events orchestrator.Events) *GameSession {
	g := &GameSession{broker: b, events: events}
	g.attach(session.New(b.cfg.HistoryWindow))
	return g
}

func (g *GameSession) attach(sess *session.Session) {
	ctx, cancel := context.WithCancel(context.Background())
	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
	}
	g.sess = sess
	g.ctx = ctx
	g.cancel = cancel
	g.orch = orchestrator.New(g.broker.client, g.broker.registry, sess.History, g.events, orchestrator.Config{
		Temperature:        g.broker.cfg.Temperature,
		TopP:               g.broker.cfg.TopP,
		MaxTokens:          g.broker.cfg.MaxTokens,
		CorrectiveRetryCap: g.broker.cfg.CorrectiveRetryCap,
		FallbackWait:       time.Duration(g.broker.cfg.RateLimitWaitSecs) * time.Second,
	})
	g.mu.Unlock()
}

// Submit runs one chat turn and persists the session afterwards. Returns a
// *orchestrator.TurnError on failure.
func (g *GameSession) Submit(content, requestedModel string, toolsEnabled bool) error {
	g.mu.Lock()
	ctx := g.ctx
	orch := g.orch
	g.mu.Unlock()

	if err := orch.Submit(ctx, content, requestedModel, toolsEnabled); err != nil {
		return err
	}

	g.persist()
	return nil
}

// Reset cancels any in-flight turn and starts a new game.
func (g *GameSession) Reset() {
	g.attach(session.New(g.broker.cfg.HistoryWindow))
}

// Load cancels any in-flight turn and resumes a persisted session.
func (g *GameSession) Load(id string) error {
	if g.broker.store == nil {
		return errors.New("session persistence is disabled")
	}
	sess, err := g.broker.store.Load(id, g.broker.cfg.HistoryWindow)
	if err != nil {
		return err
	}
	g.attach(sess)
	return nil
}

// Close cancels any in-flight turn. Called on disconnect so rate-limit wait
// timers do not outlive the connection.
func (g *GameSession) Close() {
	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
	}
	g.mu.Unlock()
}

// Session returns the underlying session.
func (g *GameSession) Session() *session.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess
}

func (g *GameSession) persist() {
	if g.broker.store == nil {
		return
	}
	g.mu.Lock()
	sess := g.sess
	g.mu.Unlock()
	if err := g.broker.store.Save(sess); err != nil {
		logger.Warn("Failed to persist session %s: %v", sess.ID, err)
	}
}

// clientEvents turns orchestrator events into websocket messages for one
// client. Sends are non-blocking; a saturated client drops messages the same
// way the hub does.
type clientEvents struct {
	client *Client
}

func (e *clientEvents) send(msg *WebMessage) {
	msg.Timestamp = time.Now()
	select {
	case e.client.send <- msg:
	default:
		logger.Warn("Client %s send buffer full, dropping %s message", e.client.ID, msg.Type)
	}
}

func (e *clientEvents) Narrative(model, text string) {
	e.send(&WebMessage{Type: MessageTypeNarrative, Model: model, Content: text})
}

func (e *clientEvents) UIUpdate(model, callID, code string) {
	e.send(&WebMessage{Type: MessageTypeUIUpdate, Model: model, CallID: callID, Code: code})
}

func (e *clientEvents) Capacity(model string, snap *ratelimit.Snapshot) {
	e.send(&WebMessage{
		Type:  MessageTypeCapacity,
		Model: model,
		Capacity: &CapacityInfo{
			LimitRequests:     snap.LimitRequests,
			RemainingRequests: snap.RemainingRequests,
			LimitTokens:       snap.LimitTokens,
			RemainingTokens:   snap.RemainingTokens,
			RequestPercent:    snap.RequestRatio() * 100,
			TokenPercent:      snap.TokenRatio() * 100,
			Warning:           snap.Warning(),
		},
	})
}

func (e *clientEvents) ModelSwitch(from, to string) {
	e.send(&WebMessage{Type: MessageTypeModelSwitch, FromModel: from, ToModel: to})
}

func (e *clientEvents) RateLimitWait(model string, wait time.Duration) {
	e.send(&WebMessage{Type: MessageTypeRateLimitWait, Model: model, Seconds: wait.Seconds()})
}
