package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/projectchat-server/internal/store"
)

func TestHubGroupMessageFanOut(t *testing.T) {
	st := newMemStore()
	members := newFakeMembers()
	members.add(1, 10, 20, 30)
	hub := startHub(t, st, members)

	alice := connect(t, hub, 10, "alice")
	bob := connect(t, hub, 20, "bob")
	outsider := connect(t, hub, 40, "mallory")

	alice.Commands <- &Command{Kind: CommandSendGroupMessage, GroupID: 1, Body: "Hello team", ClientKey: "k1"}

	ack := mustEvent(t, alice.Events, EventAck)
	if ack.Message.ID == 0 || ack.Message.ClientKey != "k1" {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	ev := mustEvent(t, bob.Events, EventGroupMessage)
	if ev.Message.SenderID != 10 || ev.Message.SenderName != "alice" || ev.Message.Body != "Hello team" || ev.GroupID != 1 {
		t.Fatalf("unexpected group message: %+v", ev)
	}

	// The sender's own connections get the push as well.
	own := mustEvent(t, alice.Events, EventGroupMessage)
	if own.Message.ID != ack.Message.ID {
		t.Fatalf("echo id %d != ack id %d", own.Message.ID, ack.Message.ID)
	}

	expectNoEvent(t, outsider.Events, EventGroupMessage, 50*time.Millisecond)

	// User 30 had no connection; the message is still in history for them.
	history, err := hub.Router().GroupHistory(context.Background(), 30, 1, store.Page{})
	if err != nil {
		t.Fatalf("history for offline member: %v", err)
	}
	if len(history) != 1 || history[0].ID != ack.Message.ID {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestHubNonMemberCannotSendToGroup(t *testing.T) {
	st := newMemStore()
	members := newFakeMembers()
	members.add(1, 10, 20)
	hub := startHub(t, st, members)

	bob := connect(t, hub, 20, "bob")
	mallory := connect(t, hub, 40, "mallory")

	mallory.Commands <- &Command{Kind: CommandSendGroupMessage, GroupID: 1, Body: "let me in", ClientKey: "m1"}

	ev := mustEvent(t, mallory.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeForbidden {
		t.Fatalf("expected forbidden error, got %+v", ev)
	}
	if ev.Error.ClientKey != "m1" {
		t.Fatalf("error should echo client key, got %q", ev.Error.ClientKey)
	}
	if st.count() != 0 {
		t.Fatalf("rejected send was persisted")
	}
	expectNoEvent(t, bob.Events, EventGroupMessage, 50*time.Millisecond)
}

func TestHubDirectMessageReachesEveryTab(t *testing.T) {
	st := newMemStore()
	hub := startHub(t, st, newFakeMembers())

	alice := connect(t, hub, 10, "alice")
	aliceOtherTab := connect(t, hub, 10, "alice")
	bobTab1 := connect(t, hub, 20, "bob")
	bobTab2 := connect(t, hub, 20, "bob")
	carol := connect(t, hub, 30, "carol")

	alice.Commands <- &Command{Kind: CommandSendDirectMessage, PeerID: 20, Body: "Question about task"}

	mustEvent(t, alice.Events, EventAck)
	for _, c := range []*Client{bobTab1, bobTab2, aliceOtherTab} {
		ev := mustEvent(t, c.Events, EventDirectMessage)
		if ev.Message.SenderID != 10 || ev.Message.RecipientID != 20 {
			t.Fatalf("unexpected direct message: %+v", ev)
		}
	}
	expectNoEvent(t, carol.Events, EventDirectMessage, 50*time.Millisecond)

	carol.Commands <- &Command{Kind: CommandFetchDirectHistory, PeerID: 10}
	hist := mustEvent(t, carol.Events, EventDirectHistory)
	if len(hist.Messages) != 0 {
		t.Fatalf("unrelated pair should have no history, got %+v", hist.Messages)
	}

	bobTab1.Commands <- &Command{Kind: CommandFetchDirectHistory, PeerID: 10}
	hist = mustEvent(t, bobTab1.Events, EventDirectHistory)
	if len(hist.Messages) != 1 || hist.Messages[0].Body != "Question about task" {
		t.Fatalf("unexpected pair history: %+v", hist.Messages)
	}
}

func TestHubUnregisterKeepsOtherTabs(t *testing.T) {
	hub := startHub(t, newMemStore(), newFakeMembers())

	alice := connect(t, hub, 10, "alice")
	tab1 := connect(t, hub, 20, "bob")
	tab2 := connect(t, hub, 20, "bob")

	hub.UnregisterClient(tab1)

	select {
	case <-tab1.Done():
	default:
		t.Fatalf("unregistered client should be closed")
	}
	if got := hub.Registry().ConnectionsFor(20); len(got) != 1 || got[0] != tab2 {
		t.Fatalf("expected only the second tab to remain, got %v", got)
	}

	alice.Commands <- &Command{Kind: CommandSendDirectMessage, PeerID: 20, Body: "still there?"}
	mustEvent(t, tab2.Events, EventDirectMessage)
}

func TestHubPersistenceFailureIsReportedToSender(t *testing.T) {
	st := newMemStore()
	st.setFailAppend(true)
	members := newFakeMembers()
	members.add(1, 10, 20)
	hub := startHub(t, st, members)

	alice := connect(t, hub, 10, "alice")
	bob := connect(t, hub, 20, "bob")

	alice.Commands <- &Command{Kind: CommandSendGroupMessage, GroupID: 1, Body: "lost?", ClientKey: "k9"}

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodePersistenceFailed || ev.Error.ClientKey != "k9" {
		t.Fatalf("expected persistence_failed for k9, got %+v", ev)
	}
	expectNoEvent(t, bob.Events, EventGroupMessage, 50*time.Millisecond)
}

func TestHubDuplicateClientKeyIsNotFannedOutTwice(t *testing.T) {
	st := newMemStore()
	members := newFakeMembers()
	members.add(1, 10, 20)
	hub := startHub(t, st, members)

	alice := connect(t, hub, 10, "alice")
	bob := connect(t, hub, 20, "bob")

	send := &Command{Kind: CommandSendGroupMessage, GroupID: 1, Body: "once", ClientKey: "retry-1"}
	alice.Commands <- send
	first := mustEvent(t, alice.Events, EventAck)
	mustEvent(t, bob.Events, EventGroupMessage)

	resend := *send
	alice.Commands <- &resend
	second := mustEvent(t, alice.Events, EventAck)

	if first.Message.ID != second.Message.ID {
		t.Fatalf("resend got a new id: %d vs %d", first.Message.ID, second.Message.ID)
	}
	if st.count() != 1 {
		t.Fatalf("expected one stored message, got %d", st.count())
	}
	expectNoEvent(t, bob.Events, EventGroupMessage, 50*time.Millisecond)
}

func TestHubFirstMessageVisibleToLaterMember(t *testing.T) {
	st := newMemStore()
	members := newFakeMembers()
	members.add(1, 100)
	hub := startHub(t, st, members)

	instructor := connect(t, hub, 100, "instructor")
	instructor.Commands <- &Command{Kind: CommandSendGroupMessage, GroupID: 1, Body: "Welcome"}
	mustEvent(t, instructor.Events, EventAck)

	student := connect(t, hub, 3, "s3")
	student.Commands <- &Command{Kind: CommandFetchGroupHistory, GroupID: 1}
	ev := mustEvent(t, student.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeForbidden {
		t.Fatalf("expected forbidden before acceptance, got %+v", ev)
	}

	members.add(1, 3)
	student.Commands <- &Command{Kind: CommandFetchGroupHistory, GroupID: 1}
	hist := mustEvent(t, student.Events, EventGroupHistory)
	if len(hist.Messages) != 1 || hist.Messages[0].Body != "Welcome" {
		t.Fatalf("unexpected history: %+v", hist.Messages)
	}
}

func TestHubStopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(newMemStore(), newFakeMembers(), RouterConfig{}, nil, nil)
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	c := NewClient(10, "alice", "student", 0)
	if err := hub.RegisterClient(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	cancel()
	<-done

	select {
	case <-c.Done():
	default:
		t.Fatalf("client should be closed after hub stops")
	}
	if hub.Registry().Len() != 0 {
		t.Fatalf("registry should be empty after stop")
	}
	if err := hub.RegisterClient(NewClient(11, "bob", "student", 0)); err != ErrHubStopped {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
}
