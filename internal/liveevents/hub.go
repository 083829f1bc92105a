// Package liveevents fans freshly stored readings out to open event streams, per subject.
package liveevents

import (
	"errors"
	"sync"

	"github.com/bwmarrin/snowflake"
	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("liveevents",
	fx.Provide(NewHub),
)

const (
	SourceAPI        = "api"
	SourceImport     = "import"
	SourceMQTT       = "mqtt"
	SourceSimulation = "simulation"
)

const (
	DefaultBacklogSize      = 50
	DefaultSubscriberBuffer = 16
)

var ErrHubUnavailable = errors.New("hub_unavailable")

type Event struct {
	ReadingID  int64   `json:"reading_id"`
	SubjectID  string  `json:"subject_id"`
	Timestamp  string  `json:"timestamp"`
	Moisture   float64 `json:"moisture"`
	Temp       float64 `json:"temp"`
	Light      float64 `json:"light"`
	SensorType string  `json:"sensor_type"`
	Source     string  `json:"source"`
}

type Hub struct {
	mu               sync.RWMutex
	streams          map[snowflake.ID]*stream
	backlogSize      int
	subscriberBuffer int
}

type stream struct {
	mu      sync.Mutex
	backlog []Event
	subs    map[uint64]chan Event
	nextID  uint64
}

type Subscription struct {
	hub     *Hub
	subject snowflake.ID
	id      uint64
	ch      chan Event
	once    sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[snowflake.ID]*stream),
		backlogSize:      DefaultBacklogSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish appends event to the subject's backlog and offers it to every subscriber.
// Slow subscribers miss events rather than block the writer.
func (h *Hub) Publish(subject snowflake.ID, event Event) {
	if h == nil || subject == 0 {
		return
	}
	s := h.streamFor(subject)

	s.mu.Lock()
	s.backlog = append(s.backlog, event)
	if len(s.backlog) > h.backlogSize {
		s.backlog = s.backlog[len(s.backlog)-h.backlogSize:]
	}
	subs := make([]chan Event, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a listener and returns the current backlog, oldest first.
func (h *Hub) Subscribe(subject snowflake.ID) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	s := h.streamFor(subject)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	s.subs[id] = ch
	backlog := append([]Event(nil), s.backlog...)
	s.mu.Unlock()

	return &Subscription{hub: h, subject: subject, id: id, ch: ch}, backlog, nil
}

func (h *Hub) streamFor(subject snowflake.ID) *stream {
	h.mu.RLock()
	current := h.streams[subject]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[subject]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[subject] = current
	}
	return current
}

func (h *Hub) unsubscribe(subject snowflake.ID, id uint64) {
	h.mu.RLock()
	s := h.streams[subject]
	h.mu.RUnlock()
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.subject, s.id)
	})
}

func FromReading(r readingdomain.Reading, source string) Event {
	return Event{
		ReadingID:  r.ID,
		SubjectID:  r.UserID.String(),
		Timestamp:  r.Timestamp,
		Moisture:   r.Moisture,
		Temp:       r.Temp,
		Light:      r.Light,
		SensorType: r.SensorType,
		Source:     source,
	}
}
