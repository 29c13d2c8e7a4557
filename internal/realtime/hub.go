package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Channel is a live connection handle. Send must not block: it either
// enqueues the event or drops it.
type Channel interface {
	ID() string
	Send(evt Event) bool
	Close()
}

// Hub is the in-process registry mapping users to their open channels. A
// user may hold any number of channels (devices, tabs). The hub is never a
// system of record; it only knows who is connected right now.
type Hub struct {
	mu       sync.RWMutex
	channels map[uuid.UUID]map[string]Channel
	owners   map[string]uuid.UUID
	logger   *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		channels: make(map[uuid.UUID]map[string]Channel),
		owners:   make(map[string]uuid.UUID),
		logger:   logger,
	}
}

// Register adds ch to userID's channels. Registering a handle that is
// already registered moves it to userID.
func (h *Hub) Register(userID uuid.UUID, ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.owners[ch.ID()]; ok {
		h.removeLocked(prev, ch.ID())
	}
	set, ok := h.channels[userID]
	if !ok {
		set = make(map[string]Channel)
		h.channels[userID] = set
	}
	set[ch.ID()] = ch
	h.owners[ch.ID()] = userID

	h.logger.Debug("channel registered",
		zap.String("user_id", userID.String()),
		zap.String("channel_id", ch.ID()),
		zap.Int("user_channels", len(set)),
	)
}

// Unregister removes ch. It returns false if ch was not registered.
func (h *Hub) Unregister(ch Channel) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID, ok := h.owners[ch.ID()]
	if !ok {
		return false
	}
	h.removeLocked(userID, ch.ID())
	h.logger.Debug("channel unregistered",
		zap.String("user_id", userID.String()),
		zap.String("channel_id", ch.ID()),
	)
	return true
}

func (h *Hub) removeLocked(userID uuid.UUID, channelID string) {
	delete(h.owners, channelID)
	set := h.channels[userID]
	delete(set, channelID)
	if len(set) == 0 {
		delete(h.channels, userID)
	}
}

// snapshot copies userID's channels so sends happen outside the lock.
func (h *Hub) snapshot(userID uuid.UUID) []Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.channels[userID]
	out := make([]Channel, 0, len(set))
	for _, ch := range set {
		out = append(out, ch)
	}
	return out
}

// Push sends evt to every channel of userID and returns how many accepted it.
func (h *Hub) Push(userID uuid.UUID, evt Event) int {
	delivered := 0
	for _, ch := range h.snapshot(userID) {
		if ch.Send(evt) {
			delivered++
		} else {
			h.logger.Debug("event dropped",
				zap.String("user_id", userID.String()),
				zap.String("channel_id", ch.ID()),
				zap.String("event", evt.Name),
			)
		}
	}
	return delivered
}

// Publish implements Publisher by pushing to local channels.
func (h *Hub) Publish(_ context.Context, userID uuid.UUID, evt Event) {
	h.Push(userID, evt)
}

// ChannelCount returns the number of open channels for userID.
func (h *Hub) ChannelCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[userID])
}

// IsOnline reports whether userID has at least one open channel.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	return h.ChannelCount(userID) > 0
}

// Stats returns the number of connected users and open channels.
func (h *Hub) Stats() (users, channels int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels), len(h.owners)
}

// CloseAll closes and forgets every channel. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := make([]Channel, 0, len(h.owners))
	for _, set := range h.channels {
		for _, ch := range set {
			all = append(all, ch)
		}
	}
	h.channels = make(map[uuid.UUID]map[string]Channel)
	h.owners = make(map[string]uuid.UUID)
	h.mu.Unlock()

	for _, ch := range all {
		ch.Close()
	}
}
