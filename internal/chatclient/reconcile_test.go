package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func confirmed(id, sender int64, body string, at time.Time) Entry {
	return Entry{ID: id, SenderID: sender, Body: body, At: at, Status: StatusConfirmed}
}

func TestReconcileReplacesEchoWithinTolerance(t *testing.T) {
	list := []Entry{
		confirmed(1, 2, "earlier", t0.Add(-time.Minute)),
		NewEcho(7, "s", "hello", "", t0),
	}

	out := Reconcile(list, confirmed(2, 7, "hello", t0.Add(800*time.Millisecond)), DefaultTolerance)

	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[1].ID)
	assert.Equal(t, StatusConfirmed, out[1].Status)
	assert.Equal(t, StatusTentative, list[1].Status, "input must not be modified")
}

func TestReconcileAppendsOutsideTolerance(t *testing.T) {
	list := []Entry{NewEcho(7, "s", "hello", "", t0)}

	out := Reconcile(list, confirmed(2, 7, "hello", t0.Add(10*time.Second)), DefaultTolerance)

	require.Len(t, out, 2)
	assert.Equal(t, StatusTentative, out[0].Status)
}

func TestReconcilePrefersClientKey(t *testing.T) {
	list := []Entry{
		NewEcho(7, "s", "same", "k1", t0),
		NewEcho(7, "s", "same", "k2", t0.Add(time.Second)),
	}

	incoming := confirmed(9, 7, "same", t0.Add(time.Second))
	incoming.ClientKey = "k2"
	out := Reconcile(list, incoming, DefaultTolerance)

	require.Len(t, out, 2)
	assert.Equal(t, StatusTentative, out[0].Status)
	assert.Equal(t, int64(9), out[1].ID)
}

func TestReconcileKeepsGenuineRepeats(t *testing.T) {
	list := []Entry{confirmed(1, 7, "ok", t0)}

	out := Reconcile(list, confirmed(2, 7, "ok", t0.Add(time.Second)), DefaultTolerance)

	assert.Len(t, out, 2)
}

func TestReconcileIgnoresKnownID(t *testing.T) {
	list := []Entry{confirmed(1, 7, "ok", t0)}

	out := Reconcile(list, confirmed(1, 7, "ok", t0), DefaultTolerance)

	assert.Len(t, out, 1)
}

func TestReconcileOtherSenderIsAppended(t *testing.T) {
	list := []Entry{NewEcho(7, "s", "hello", "", t0)}

	out := Reconcile(list, confirmed(2, 8, "hello", t0), DefaultTolerance)

	require.Len(t, out, 2)
	assert.Equal(t, StatusTentative, out[0].Status)
}

func TestMarkFailedAndRetryConfirm(t *testing.T) {
	list := []Entry{NewEcho(7, "s", "hello", "k1", t0)}

	failed := MarkFailed(list, "k1", "message could not be saved")
	require.Equal(t, StatusFailed, failed[0].Status)
	assert.Equal(t, "message could not be saved", failed[0].Reason)
	assert.Equal(t, StatusTentative, list[0].Status)

	incoming := confirmed(3, 7, "hello", t0.Add(time.Second))
	incoming.ClientKey = "k1"
	out := Reconcile(failed, incoming, DefaultTolerance)
	require.Len(t, out, 1)
	assert.Equal(t, StatusConfirmed, out[0].Status)
	assert.Empty(t, out[0].Reason)
}

// An echo followed by its confirmed copy within tolerance renders once,
// however the confirmed copy is keyed.
func TestReconcileDedupProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tolerance := DefaultTolerance
		sender := rapid.Int64Range(1, 1000).Draw(t, "sender")
		body := rapid.StringN(1, 40, -1).Draw(t, "body")
		skew := time.Duration(rapid.Int64Range(-int64(tolerance), int64(tolerance)).Draw(t, "skew"))
		withKey := rapid.Bool().Draw(t, "withKey")

		var list []Entry
		others := rapid.IntRange(0, 5).Draw(t, "others")
		for i := 0; i < others; i++ {
			list = append(list, confirmed(int64(i+1), sender+1, body, t0.Add(time.Duration(i)*time.Second)))
		}

		key := ""
		if withKey {
			key = "key"
		}
		list = append(list, NewEcho(sender, "s", body, key, t0))

		incoming := confirmed(100, sender, body, t0.Add(skew))
		incoming.ClientKey = key
		out := Reconcile(list, incoming, tolerance)
		// A second delivery of the same message, as when ack and push both arrive.
		out = Reconcile(out, incoming, tolerance)

		matches := 0
		for _, e := range out {
			if e.SenderID == sender && e.Body == body {
				matches++
				if e.Status != StatusConfirmed || e.ID != 100 {
					t.Fatalf("entry not confirmed: %+v", e)
				}
			}
		}
		if matches != 1 {
			t.Fatalf("expected exactly one entry, got %d in %+v", matches, out)
		}
		if len(out) != others+1 {
			t.Fatalf("list length %d, want %d", len(out), others+1)
		}
	})
}

func TestTimelineReplaceKeepsInFlightSends(t *testing.T) {
	tl := NewTimeline(0)
	tl.AddTentative(NewEcho(7, "s", "covered", "k1", t0))
	tl.AddTentative(NewEcho(7, "s", "in flight", "k2", t0))

	historyEntry := confirmed(1, 7, "covered", t0.Add(time.Second))
	historyEntry.ClientKey = "k1"
	tl.Replace([]Entry{confirmed(0, 8, "before", t0.Add(-time.Hour)), historyEntry})

	entries := tl.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "before", entries[0].Body)
	assert.Equal(t, "covered", entries[1].Body)
	assert.Equal(t, StatusConfirmed, entries[1].Status)
	assert.Equal(t, "in flight", entries[2].Body)
	assert.Equal(t, StatusTentative, entries[2].Status)
}

func TestTimelineReplaceIsIdempotent(t *testing.T) {
	tl := NewTimeline(time.Second)
	history := []Entry{confirmed(1, 7, "a", t0), confirmed(2, 8, "b", t0.Add(time.Second))}

	tl.Replace(history)
	first := tl.Entries()
	tl.Replace(history)

	assert.Equal(t, first, tl.Entries())
}
