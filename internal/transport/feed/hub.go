// Package feed pushes room events to websocket subscribers.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"liferoom.ai/internal/config"
	"liferoom.ai/internal/model"
	"liferoom.ai/internal/protocol"
)

// Counts feeds the WELCOME message.
type Counts func(ctx context.Context) (agents, lifeDays int)

type subscriber struct {
	id   string
	out  chan []byte
	kick chan struct{}
	once sync.Once

	mu     sync.Mutex
	agents map[string]struct{} // lowercased; empty means all
}

func (s *subscriber) setAgents(names []string) {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			m[n] = struct{}{}
		}
	}
	s.mu.Lock()
	s.agents = m
	s.mu.Unlock()
}

func (s *subscriber) wants(agents []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.agents) == 0 {
		return true
	}
	for _, a := range agents {
		if _, ok := s.agents[strings.ToLower(a)]; ok {
			return true
		}
	}
	return false
}

func (s *subscriber) close() { s.once.Do(func() { close(s.kick) }) }

type Hub struct {
	log          *log.Logger
	validator    *protocol.Validator
	counts       Counts
	sendBuffer   int
	writeTimeout time.Duration
	upgrader     websocket.Upgrader

	mu   sync.Mutex
	subs map[string]*subscriber

	nextID    atomic.Uint64
	seq       atomic.Uint64
	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewHub(cfg config.FeedConfig, v *protocol.Validator, counts Counts, logger *log.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Hub{
		log:          logger,
		validator:    v,
		counts:       counts,
		sendBuffer:   cfg.SendBuffer,
		writeTimeout: cfg.WriteTimeout,
		subs:         map[string]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // public read-only feed
		},
	}
}

type Stats struct {
	Subscribers int
	Published   uint64
	Dropped     uint64
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	n := len(h.subs)
	h.mu.Unlock()
	return Stats{Subscribers: n, Published: h.published.Load(), Dropped: h.dropped.Load()}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Publish fans one event out. A subscriber whose buffer is full is
// disconnected instead of blocking the publisher.
func (h *Hub) Publish(typ string, agents []string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if agents == nil {
		agents = []string{}
	}
	msg, err := json.Marshal(protocol.EventMsg{
		Type:            typ,
		ProtocolVersion: protocol.Version,
		Seq:             h.seq.Add(1),
		TimeMS:          time.Now().UnixMilli(),
		Agents:          agents,
		Data:            raw,
	})
	if err != nil {
		return err
	}
	h.published.Add(1)

	h.mu.Lock()
	var slow []*subscriber
	for _, s := range h.subs {
		if !s.wants(agents) {
			continue
		}
		select {
		case s.out <- msg:
		default:
			slow = append(slow, s)
		}
	}
	for _, s := range slow {
		delete(h.subs, s.id)
	}
	h.mu.Unlock()

	for _, s := range slow {
		h.dropped.Add(1)
		s.close()
		h.printf("feed drop session=%s reason=slow_consumer", s.id)
	}
	return nil
}

func (h *Hub) PublishLifeDay(d model.LifeDay) {
	_ = h.Publish(protocol.TypeLifeDay, []string{d.AgentName}, d)
}

func (h *Hub) PublishIntersection(x model.Intersection) {
	_ = h.Publish(protocol.TypeIntersection, []string{x.InitiatingAgent, x.OtherAgent}, x)
}

func (h *Hub) PublishAgent(a model.Agent) {
	_ = h.Publish(protocol.TypeAgent, []string{a.Name}, a)
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, perr := h.parseSubscribe(msg)
		if perr != nil {
			h.reject(conn, perr)
			return
		}

		s := &subscriber{
			id:   fmt.Sprintf("F%d", h.nextID.Add(1)),
			out:  make(chan []byte, h.sendBuffer),
			kick: make(chan struct{}),
		}
		s.setAgents(sub.Agents)

		welcome := protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       s.id,
		}
		if h.counts != nil {
			welcome.Agents, welcome.LifeDays = h.counts(r.Context())
		}
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := conn.WriteJSON(welcome); err != nil {
			return
		}

		h.add(s)
		defer h.remove(s.id)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case <-s.kick:
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"), time.Now().Add(time.Second))
					_ = conn.Close()
					writeErr <- nil
					return
				case b := <-s.out:
					_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop: SUBSCRIBE updates the filter, anything else keeps the
		// connection alive.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeSubscribe {
				continue
			}
			if upd, perr := h.parseSubscribe(msg); perr == nil {
				s.setAgents(upd.Agents)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (h *Hub) parseSubscribe(msg []byte) (protocol.SubscribeMsg, *protocol.Error) {
	var sub protocol.SubscribeMsg
	if h.validator != nil {
		if err := h.validator.Validate(protocol.SchemaSubscribe, msg); err != nil {
			if pe, ok := err.(*protocol.Error); ok {
				return sub, pe
			}
			return sub, protocol.NewError(protocol.ErrInternal, err.Error(), "")
		}
	}
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, protocol.NewError(protocol.ErrBadRequest, "bad subscribe", err.Error())
	}
	if sub.Type != protocol.TypeSubscribe {
		return sub, protocol.NewError(protocol.ErrBadRequest, "expected SUBSCRIBE", "")
	}
	if sub.ProtocolVersion != protocol.Version {
		return sub, protocol.NewError(protocol.ErrBadRequest, "unsupported protocol_version", "use "+protocol.Version)
	}
	return sub, nil
}

func (h *Hub) reject(conn *websocket.Conn, perr *protocol.Error) {
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteJSON(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            perr.Code,
		Message:         perr.Message,
	})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, perr.Message), time.Now().Add(time.Second))
}

func (h *Hub) printf(format string, args ...any) {
	if h.log != nil {
		h.log.Printf(format, args...)
	}
}
