// Package events fans playback notifications out to remote viewers with per-subscriber
// acknowledgements, so a viewer that reconnects catches up on what it missed.
package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/playback"
)

// Kind names the notification carried by an envelope.
type Kind string

const (
	KindTurnProgress Kind = "turn_progress"
	KindRender       Kind = "render"
)

// KindOf maps a playback notification kind onto its wire name.
func KindOf(kind playback.NotificationKind) (Kind, error) {
	switch kind {
	case playback.TurnProgress:
		return KindTurnProgress, nil
	case playback.Render:
		return KindRender, nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
}

// Envelope carries one notification together with its sequence number.
type Envelope struct {
	Sequence uint64
	Kind     Kind
	GameID   string
	Match    int
	Turn     int
}

// Clone returns a copy the receiver may keep.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// Config controls the retention policy for the stream log and subscriber buffers.
type Config struct {
	Retain int
	Log    *logging.Logger
}

const defaultRetention = 512

// Stream coordinates ordered event delivery with at-least-once semantics per subscriber.
type Stream struct {
	mu          sync.Mutex
	nextSeq     uint64
	retention   int
	logOrder    []uint64
	logPayloads map[uint64]*Envelope
	subscribers map[string]*subscriberState
	log         *logging.Logger
}

// subscriberState persists acknowledgement state between transient connections.
type subscriberState struct {
	id      string
	pending []uint64
	lastAck uint64
	ch      chan *Envelope
	active  bool
}

// Subscription exposes the event channel and acknowledgement helpers for a subscriber.
type Subscription struct {
	id     string
	stream *Stream
	events chan *Envelope
	once   sync.Once
}

var (
	// ErrOutOfOrderAck signals that a subscriber attempted to acknowledge future sequences.
	ErrOutOfOrderAck = errors.New("ack sequence must match the next pending event")
	// ErrUnknownKind reports a notification kind the stream cannot carry.
	ErrUnknownKind = errors.New("unknown notification kind")
	errNilStream   = errors.New("nil stream")
)

// NewStream constructs a stream using the provided configuration.
func NewStream(cfg Config) *Stream {
	retention := cfg.Retain
	if retention <= 0 {
		retention = defaultRetention
	}
	log := cfg.Log
	if log == nil {
		log = logging.L()
	}
	return &Stream{
		retention:   retention,
		logPayloads: make(map[uint64]*Envelope),
		subscribers: make(map[string]*subscriberState),
		log:         log,
	}
}

// Subscribe attaches the logical subscriber to the stream and replays outstanding events.
func (s *Stream) Subscribe(ctx context.Context, subscriberID string, buffer int) (*Subscription, error) {
	if s == nil {
		return nil, errNilStream
	}
	if subscriberID == "" {
		return nil, errors.New("subscriber id must be provided")
	}
	if buffer <= 0 {
		buffer = 32
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.ensureSubscriberLocked(subscriberID)
	if state.active {
		return nil, fmt.Errorf("subscriber %q is already connected", subscriberID)
	}

	//1.- Queue every retained event after the last ack before anything new can arrive.
	replay := s.collectReplayLocked(state)
	ch := make(chan *Envelope, max(buffer, len(replay)))
	for _, env := range s.prepareDeliveriesLocked(replay) {
		ch <- env
	}
	state.ch = ch
	state.active = true
	state.pending = replay

	sub := &Subscription{id: subscriberID, stream: s, events: ch}
	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

// Events exposes the ordered delivery channel for the subscriber.
func (s *Subscription) Events() <-chan *Envelope {
	if s == nil {
		return nil
	}
	return s.events
}

// Ack informs the stream that the subscriber processed the given sequence.
func (s *Subscription) Ack(sequence uint64) error {
	if s == nil || s.stream == nil {
		return errors.New("subscription closed")
	}
	return s.stream.ack(s.id, sequence)
}

// Close marks the subscription as inactive while preserving acknowledgement state.
func (s *Subscription) Close() {
	if s == nil || s.stream == nil {
		return
	}
	s.once.Do(func() {
		s.stream.deactivateSubscriber(s.id, s.events)
	})
}

func (s *Stream) ensureSubscriberLocked(subscriberID string) *subscriberState {
	state, ok := s.subscribers[subscriberID]
	if !ok {
		state = &subscriberState{id: subscriberID}
		s.subscribers[subscriberID] = state
	}
	return state
}

// collectReplayLocked lists every retained sequence after the subscriber's last ack.
func (s *Stream) collectReplayLocked(state *subscriberState) []uint64 {
	var replay []uint64
	for _, seq := range s.logOrder {
		if seq > state.lastAck {
			replay = append(replay, seq)
		}
	}
	return replay
}

func (s *Stream) prepareDeliveriesLocked(sequences []uint64) []*Envelope {
	deliveries := make([]*Envelope, 0, len(sequences))
	for _, seq := range sequences {
		if payload, ok := s.logPayloads[seq]; ok {
			deliveries = append(deliveries, payload.Clone())
		}
	}
	return deliveries
}

// Notify publishes a playback notification. It satisfies playback.Notifier, so a stream can
// be handed straight to a Game.
func (s *Stream) Notify(n playback.Notification) {
	if _, err := s.Publish(n); err != nil {
		s.log.Warn("dropping notification", logging.String("game_id", n.GameID), logging.Error(err))
	}
}

// Publish sequences a notification and fans it out to connected subscribers.
func (s *Stream) Publish(n playback.Notification) (uint64, error) {
	if s == nil {
		return 0, errNilStream
	}
	kind, err := KindOf(n.Kind)
	if err != nil {
		return 0, err
	}
	return s.publishEnvelope(&Envelope{Kind: kind, GameID: n.GameID, Match: n.Match, Turn: n.Turn})
}

func (s *Stream) publishEnvelope(envelope *Envelope) (uint64, error) {
	s.mu.Lock()
	s.nextSeq++
	seq := s.nextSeq
	envelope.Sequence = seq
	s.logPayloads[seq] = envelope
	s.logOrder = append(s.logOrder, seq)

	deliveries := make([]delivery, 0, len(s.subscribers))
	for _, state := range s.subscribers {
		state.pending = append(state.pending, seq)
		if state.active && state.ch != nil {
			deliveries = append(deliveries, delivery{id: state.id, ch: state.ch, payload: envelope.Clone()})
		}
	}
	s.enforceRetentionLocked()

	//1.- Fan out without blocking the playback thread; a full buffer is caught up on resubscribe.
	for _, item := range deliveries {
		select {
		case item.ch <- item.payload:
		default:
			s.log.Debug("subscriber buffer full", logging.String("subscriber", item.id), logging.Int64("sequence", int64(seq)))
		}
	}
	s.mu.Unlock()

	return seq, nil
}

type delivery struct {
	id      string
	ch      chan<- *Envelope
	payload *Envelope
}

func (s *Stream) enforceRetentionLocked() {
	if len(s.logOrder) <= s.retention {
		return
	}
	//1.- Drop the oldest envelopes; subscribers that fell this far behind lose them.
	dropped := s.logOrder[:len(s.logOrder)-s.retention]
	for _, seq := range dropped {
		delete(s.logPayloads, seq)
	}
	pruneBefore := dropped[len(dropped)-1]
	s.logOrder = append([]uint64(nil), s.logOrder[len(dropped):]...)

	//2.- Pending lists only reference retained envelopes.
	for _, state := range s.subscribers {
		idx := sort.Search(len(state.pending), func(i int) bool { return state.pending[i] > pruneBefore })
		state.pending = state.pending[idx:]
	}
}

// Retained reports how many envelopes the stream currently holds.
func (s *Stream) Retained() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logOrder)
}

func (s *Stream) ack(subscriberID string, sequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.subscribers[subscriberID]
	if !ok {
		return fmt.Errorf("unknown subscriber %q", subscriberID)
	}
	if len(state.pending) == 0 {
		if sequence <= state.lastAck {
			return nil
		}
		return ErrOutOfOrderAck
	}
	if sequence != state.pending[0] {
		return ErrOutOfOrderAck
	}
	state.pending = state.pending[1:]
	state.lastAck = sequence
	s.enforceRetentionLocked()
	return nil
}

// deactivateSubscriber closes ch unless the subscriber already reconnected on a newer channel.
func (s *Stream) deactivateSubscriber(subscriberID string, ch chan *Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.subscribers[subscriberID]
	if !ok || state.ch != ch {
		return
	}
	state.active = false
	if state.ch != nil {
		close(state.ch)
		state.ch = nil
	}
}
