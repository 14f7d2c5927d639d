package core

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"ipchain/core/events"
	"ipchain/core/types"
	"ipchain/observability"
)

const eventHistoryLimit = 2048

// StoredEvent is a registry event with its position in the node's stream.
// Cursor is the decimal sequence number; subscribers resume from it.
type StoredEvent struct {
	Sequence  uint64
	Cursor    string
	Timestamp int64
	Event     *types.Event
}

func cloneStoredEvent(entry StoredEvent) StoredEvent {
	cloned := entry
	if entry.Event != nil {
		cloned.Event = entry.Event.Clone()
	}
	return cloned
}

// publishEvent appends the event to the bounded history and fans it out to
// live subscribers. Slow subscribers drop events rather than block the node;
// the cursor lets them backfill.
func (n *Node) publishEvent(ev events.Event) {
	if n == nil || ev == nil {
		return
	}
	converted := convertEvent(ev)
	if converted == nil {
		return
	}
	recordEventMetrics(ev, converted.Type)

	n.streamMu.Lock()
	if n.streamSubs == nil {
		n.streamSubs = make(map[uint64]chan StoredEvent)
	}
	n.streamSeq++
	entry := StoredEvent{
		Sequence:  n.streamSeq,
		Cursor:    strconv.FormatUint(n.streamSeq, 10),
		Timestamp: time.Now().Unix(),
		Event:     converted,
	}
	n.streamHistory = append(n.streamHistory, cloneStoredEvent(entry))
	if len(n.streamHistory) > eventHistoryLimit {
		excess := len(n.streamHistory) - eventHistoryLimit
		trimmed := make([]StoredEvent, eventHistoryLimit)
		copy(trimmed, n.streamHistory[excess:])
		n.streamHistory = trimmed
	}
	subscribers := make([]chan StoredEvent, 0, len(n.streamSubs))
	for _, ch := range n.streamSubs {
		subscribers = append(subscribers, ch)
	}
	n.streamMu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- cloneStoredEvent(entry):
		default:
			observability.Events().RecordStreamDrop()
		}
	}
}

func recordEventMetrics(ev events.Event, eventType string) {
	telemetry := observability.Events()
	telemetry.RecordEvent(eventType)
	switch payment := ev.(type) {
	case events.RoyaltyPaid:
		telemetry.RecordPayment(fmt.Sprintf("0x%x", payment.Token), bigFloat(payment.Amount))
	case events.RoyaltyMintingFeePaid:
		telemetry.RecordPayment(fmt.Sprintf("0x%x", payment.Token), bigFloat(payment.Amount))
	}
}

func bigFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

func convertEvent(ev events.Event) *types.Event {
	type converter interface {
		Event() *types.Event
	}
	if c, ok := ev.(converter); ok {
		return c.Event()
	}
	return &types.Event{Type: ev.EventType(), Attributes: map[string]string{}}
}

// EventsSince returns history entries with a sequence greater than the
// supplied cursor. An empty cursor returns the full retained history.
func (n *Node) EventsSince(cursor string) []StoredEvent {
	since := parseCursor(cursor)
	n.streamMu.Lock()
	history := make([]StoredEvent, len(n.streamHistory))
	copy(history, n.streamHistory)
	n.streamMu.Unlock()

	out := make([]StoredEvent, 0, len(history))
	for _, entry := range history {
		if entry.Sequence > since {
			out = append(out, cloneStoredEvent(entry))
		}
	}
	return out
}

// SubscribeEvents registers a live subscriber starting after the supplied
// cursor. It returns the update channel, a cancel function and the backlog
// the cursor missed. The channel closes on cancel or context done.
func (n *Node) SubscribeEvents(ctx context.Context, cursor string) (<-chan StoredEvent, func(), []StoredEvent, error) {
	if n == nil {
		return nil, nil, nil, fmt.Errorf("node not initialised")
	}
	updates := make(chan StoredEvent, 32)
	since := parseCursor(cursor)

	n.streamMu.Lock()
	if n.streamSubs == nil {
		n.streamSubs = make(map[uint64]chan StoredEvent)
	}
	id := n.streamNextID
	n.streamNextID++
	n.streamSubs[id] = updates
	observability.Events().SetStreamSubscribers(len(n.streamSubs))
	history := make([]StoredEvent, len(n.streamHistory))
	copy(history, n.streamHistory)
	n.streamMu.Unlock()

	backlog := make([]StoredEvent, 0, len(history))
	for _, entry := range history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneStoredEvent(entry))
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.streamMu.Lock()
			sub, ok := n.streamSubs[id]
			if ok {
				delete(n.streamSubs, id)
				close(sub)
			}
			observability.Events().SetStreamSubscribers(len(n.streamSubs))
			n.streamMu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return updates, cancel, backlog, nil
}

func parseCursor(cursor string) uint64 {
	trimmed := strings.TrimSpace(cursor)
	if trimmed == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
