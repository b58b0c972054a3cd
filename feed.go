package main

import "sync"

// Event kinds carried on the change feed.
const (
	eventEntries = "entries"
	eventTargets = "targets"
	eventProfile = "profile"
)

// ledgerEvent says that something for a user changed. Consumers re-read the
// store rather than applying the event as a delta.
type ledgerEvent struct {
	UserID int    `json:"user_id"`
	Date   string `json:"date,omitempty"`
	Kind   string `json:"kind"`
}

const feedBuffer = 16

type feedSub struct {
	ch chan ledgerEvent
}

// changeFeed fans ledger events out to per-user subscribers.
type changeFeed struct {
	mu   sync.RWMutex
	subs map[int]map[*feedSub]struct{}
}

func newChangeFeed() *changeFeed {
	return &changeFeed{subs: make(map[int]map[*feedSub]struct{})}
}

// subscribe returns a stream of events for userID and a function that ends
// the subscription and closes the stream. The function is safe to call twice.
func (f *changeFeed) subscribe(userID int) (<-chan ledgerEvent, func()) {
	sub := &feedSub{ch: make(chan ledgerEvent, feedBuffer)}

	f.mu.Lock()
	if f.subs[userID] == nil {
		f.subs[userID] = make(map[*feedSub]struct{})
	}
	f.subs[userID][sub] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			f.mu.Lock()
			if set := f.subs[userID]; set != nil {
				delete(set, sub)
				if len(set) == 0 {
					delete(f.subs, userID)
				}
			}
			f.mu.Unlock()
			close(sub.ch)
		})
	}
}

// publish never blocks. When a subscriber's buffer is full its oldest event
// is discarded to make room, so the newest change always gets through.
func (f *changeFeed) publish(ev ledgerEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for sub := range f.subs[ev.UserID] {
		for {
			select {
			case sub.ch <- ev:
			default:
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// subscribers reports how many streams are open for userID.
func (f *changeFeed) subscribers(userID int) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[userID])
}
