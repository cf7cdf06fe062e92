package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/projectchat-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// expectNoEvent fails if ch yields an event of kind within wait.
func expectNoEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	deadline := time.After(wait)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		case <-deadline:
			return
		}
	}
}

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory store.MessageStore. Set failAppend to make every
// append fail.
type memStore struct {
	mu         sync.Mutex
	msgs       []*store.Message
	nextID     int64
	clock      time.Time
	failAppend bool
}

func newMemStore() *memStore {
	return &memStore{clock: time.Unix(1700000000, 0).UTC()}
}

func (s *memStore) setFailAppend(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAppend = fail
}

func (s *memStore) AppendMessage(_ context.Context, msg *store.Message) (*store.Message, bool, error) {
	if err := store.ValidateMessage(msg); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAppend {
		return nil, false, errStoreDown
	}
	if msg.ClientKey != "" {
		for _, m := range s.msgs {
			if m.SenderID == msg.SenderID && m.ClientKey == msg.ClientKey {
				cp := *m
				return &cp, false, nil
			}
		}
	}

	s.nextID++
	s.clock = s.clock.Add(time.Millisecond)
	saved := *msg
	saved.ID = s.nextID
	saved.CreatedAt = s.clock
	s.msgs = append(s.msgs, &saved)

	cp := saved
	return &cp, true, nil
}

func (s *memStore) ListGroupMessages(_ context.Context, groupID int64, page store.Page) ([]*store.Message, error) {
	return s.list(page, func(m *store.Message) bool {
		return m.GroupID != nil && *m.GroupID == groupID
	}), nil
}

func (s *memStore) ListDirectMessages(_ context.Context, a, b int64, page store.Page) ([]*store.Message, error) {
	return s.list(page, func(m *store.Message) bool {
		if m.RecipientID == nil {
			return false
		}
		r := *m.RecipientID
		return (m.SenderID == a && r == b) || (m.SenderID == b && r == a)
	}), nil
}

func (s *memStore) list(page store.Page, match func(*store.Message) bool) []*store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*store.Message
	for _, m := range s.msgs {
		if !match(m) {
			continue
		}
		if page.BeforeID > 0 && m.ID >= page.BeforeID {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[len(out)-page.Limit:]
	}
	return out
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// fakeMembers is a static MembershipResolver.
type fakeMembers struct {
	mu     sync.Mutex
	groups map[int64][]int64
	err    error
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{groups: make(map[int64][]int64)}
}

func (f *fakeMembers) add(groupID int64, users ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[groupID] = append(f.groups[groupID], users...)
}

func (f *fakeMembers) MembersOf(_ context.Context, groupID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]int64(nil), f.groups[groupID]...), nil
}

func (f *fakeMembers) IsMember(_ context.Context, groupID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, id := range f.groups[groupID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// startHub runs a hub until the test ends.
func startHub(t *testing.T, st store.MessageStore, members MembershipResolver) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(st, members, RouterConfig{MaxBodyLength: 100, HistoryLimit: 50, StoreTimeout: time.Second}, nil, nil)
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func connect(t *testing.T, hub *Hub, userID int64, username string) *Client {
	t.Helper()

	c := NewClient(userID, username, "student", 0)
	if err := hub.RegisterClient(c); err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return c
}
