package session

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Verbs register on import.
	_ "meshpilot/internal/commands/builtin"

	"meshpilot/internal/await"
	"meshpilot/internal/config"
	"meshpilot/internal/device/devicesim"
	"meshpilot/internal/output"
	"meshpilot/internal/registry"
	"meshpilot/internal/store"
	"meshpilot/pkg/pilottypes"
)

// syncBuffer collects printer output. The pump writes from its own
// goroutine, so reads take the same lock.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// newSession builds a session against a simulator without starting the
// event pump, for tests that drive pump or startup themselves.
func newSession(t *testing.T, sc *devicesim.Scenario) (*Session, *devicesim.Sim, *syncBuffer) {
	t.Helper()

	sim := devicesim.New(sc)
	t.Cleanup(func() { _ = sim.Close() })

	reg := registry.New()
	contacts, err := sim.Contacts(context.Background())
	require.NoError(t, err)
	reg.ReplaceAll(contacts)

	opts := config.NewOptions()
	opts.SetColor(false)

	buf := &syncBuffer{}
	s := New(Config{
		Link:     sim,
		Registry: reg,
		Waits:    await.New(),
		Options:  opts,
		Printer:  output.New(opts, output.WithWriter(buf)),
	})
	return s, sim, buf
}

// testSession is newSession with the event pump running, the way Run wires
// it up.
func testSession(t *testing.T) (*Session, *devicesim.Sim, *syncBuffer) {
	t.Helper()
	return testSessionWith(t, devicesim.DefaultScenario())
}

func testSessionWith(t *testing.T, sc *devicesim.Scenario) (*Session, *devicesim.Sim, *syncBuffer) {
	t.Helper()
	s, sim, buf := newSession(t, sc)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = s.Pump(ctx) }()
	return s, sim, buf
}

// withArchive attaches an in-memory message archive to the session.
func withArchive(t *testing.T, s *Session) *store.Archive {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	a, err := store.NewFromDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	s.archive = a
	return a
}

func messageFrom(name, text string) pilottypes.Event {
	identity := devicesim.IdentityFor(name)
	return pilottypes.Event{
		Kind: pilottypes.EventContactMessage,
		Message: &pilottypes.Message{
			SenderPrefix: identity[:devicesim.SenderPrefixLen],
			Text:         text,
			PathLen:      pilottypes.DirectPathLen,
			Timestamp:    time.Now(),
		},
	}
}

func channelMessage(channel int, text string) pilottypes.Event {
	return pilottypes.Event{
		Kind: pilottypes.EventChannelMessage,
		Message: &pilottypes.Message{
			Channel:   channel,
			Text:      text,
			PathLen:   1,
			Timestamp: time.Now(),
		},
	}
}

func contactTarget(t *testing.T, s *Session, name string) pilottypes.Target {
	t.Helper()
	c, ok := s.registry.FindByName(name)
	require.True(t, ok, "contact %s", name)
	return pilottypes.ContactTarget(c)
}

func TestNavigateTracksPrevious(t *testing.T) {
	s, _, _ := newSession(t, devicesim.DefaultScenario())
	alice := contactTarget(t, s, "alice")
	ridge := contactTarget(t, s, "ridge-rpt")

	require.True(t, s.Navigate(alice))
	require.True(t, s.Navigate(ridge))

	back, err := s.Resolve("..")
	require.NoError(t, err)
	assert.True(t, back.Equal(alice))
}

func TestNavigateToSameTargetKeepsUndoSlot(t *testing.T) {
	s, _, _ := newSession(t, devicesim.DefaultScenario())
	alice := contactTarget(t, s, "alice")
	ridge := contactTarget(t, s, "ridge-rpt")

	require.True(t, s.Navigate(alice))
	require.True(t, s.Navigate(ridge))
	assert.False(t, s.Navigate(ridge), "renavigation is a no-op")

	back, err := s.Resolve("..")
	require.NoError(t, err)
	assert.True(t, back.Equal(alice), "the undo slot still holds the last real target")
}

func TestRequestChatAdoptsTarget(t *testing.T) {
	s, _, _ := newSession(t, devicesim.DefaultScenario())
	alice := contactTarget(t, s, "alice")

	_, ok := s.ChatRequest()
	assert.False(t, ok)

	s.RequestChat(alice)

	got, ok := s.ChatRequest()
	require.True(t, ok)
	assert.True(t, got.Equal(alice))
	assert.True(t, s.Current().Equal(alice))
}

func TestRequestQuitIsIdempotent(t *testing.T) {
	s, _, _ := newSession(t, devicesim.DefaultScenario())
	assert.False(t, s.quitRequested())
	s.RequestQuit()
	s.RequestQuit()
	assert.True(t, s.quitRequested())
}

func TestStartupSyncsContactsAndDrainsQueue(t *testing.T) {
	s, sim, buf := newSession(t, devicesim.DefaultScenario())
	sim.QueueMessage(messageFrom("alice", "while you were gone"))
	sim.QueueMessage(channelMessage(1, "anyone near the pass"))

	require.NoError(t, s.startup(context.Background()))

	assert.Equal(t, 4, s.registry.Len())
	out := buf.String()
	assert.Contains(t, out, "alice: while you were gone")
	assert.Contains(t, out, "ch1: anyone near the pass")

	last, ok := s.LastSender()
	require.True(t, ok, "queued messages set the reply origin")
	require.Equal(t, pilottypes.TargetChannel, last.Kind, "the most recent queued message wins")
	assert.Equal(t, 1, last.Channel)
}

func TestPumpShowsIncomingAndTracksSender(t *testing.T) {
	s, sim, buf := testSession(t)

	sim.InjectEvent(messageFrom("alice", "you up the hill?"))

	require.Eventually(t, func() bool {
		last, ok := s.LastSender()
		return ok && last.Kind == pilottypes.TargetContact && last.Contact.Name == "alice"
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, buf.String(), "alice: you up the hill?")

	// A channel message overwrites the reply origin.
	sim.InjectEvent(channelMessage(2, "signal check"))
	require.Eventually(t, func() bool {
		last, ok := s.LastSender()
		return ok && last.Kind == pilottypes.TargetChannel && last.Channel == 2
	}, time.Second, 10*time.Millisecond)
}

func TestPumpArchivesIncoming(t *testing.T) {
	s, sim, _ := testSession(t)
	archive := withArchive(t, s)

	sim.InjectEvent(messageFrom("alice", "made camp"))
	sim.InjectEvent(channelMessage(2, "storm rolling in"))

	require.Eventually(t, func() bool {
		n, err := archive.Count()
		return err == nil && n == 2
	}, time.Second, 10*time.Millisecond)

	entries, err := archive.Recent("alice", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.In, entries[0].Direction)
	assert.Equal(t, "made camp", entries[0].Text)

	entries, err = archive.Recent("ch2", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Channel)
}

func TestPumpAdverts(t *testing.T) {
	t.Run("unknown sender lands in pending", func(t *testing.T) {
		s, sim, buf := testSession(t)
		sim.InjectEvent(pilottypes.Event{
			Kind:    pilottypes.EventAdvertisement,
			Pending: &pilottypes.PendingContact{Identity: devicesim.IdentityFor("visitor"), Name: "visitor", Seen: time.Now()},
		})

		require.Eventually(t, func() bool {
			return len(s.registry.PendingList()) == 1
		}, time.Second, 10*time.Millisecond)
		assert.Contains(t, buf.String(), "Advert from visitor (pending)")
	})

	t.Run("known sender refreshes the advert time", func(t *testing.T) {
		s, sim, buf := testSession(t)
		seen := time.Now().Truncate(time.Second)
		identity := devicesim.IdentityFor("alice")
		sim.InjectEvent(pilottypes.Event{
			Kind:    pilottypes.EventAdvertisement,
			Pending: &pilottypes.PendingContact{Identity: identity, Name: "alice", Seen: seen},
		})

		require.Eventually(t, func() bool {
			c, ok := s.registry.Get(identity)
			return ok && c.LastAdvert.Equal(seen)
		}, time.Second, 10*time.Millisecond)
		assert.Contains(t, buf.String(), "Advert from alice")
		assert.Empty(t, s.registry.PendingList())
	})
}

func TestPumpPathUpdate(t *testing.T) {
	s, sim, buf := testSession(t)
	identity := devicesim.IdentityFor("alice")
	sim.InjectEvent(pilottypes.Event{
		Kind: pilottypes.EventPathUpdate,
		Path: &pilottypes.PathUpdate{IdentityPrefix: identity[:devicesim.SenderPrefixLen], OutPath: "1f,08"},
	})

	require.Eventually(t, func() bool {
		c, ok := s.registry.Get(identity)
		return ok && c.OutPath == "1f,08"
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, buf.String(), "Path to alice updated")
}

func TestPumpNewContact(t *testing.T) {
	s, sim, buf := testSession(t)
	sim.InjectEvent(pilottypes.Event{
		Kind:    pilottypes.EventNewContact,
		Contact: &pilottypes.Contact{Identity: devicesim.IdentityFor("bob"), Name: "bob", Kind: pilottypes.KindChat},
	})

	require.Eventually(t, func() bool {
		_, ok := s.registry.FindByName("bob")
		return ok
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, buf.String(), "New contact bob")
}

func TestPumpShowsUnclaimedLoginResult(t *testing.T) {
	_, sim, buf := testSession(t)

	sim.InjectEvent(pilottypes.Event{
		Kind:  pilottypes.EventLoginResult,
		Login: &pilottypes.LoginResult{Success: true},
	})
	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "Login success")
	}, time.Second, 10*time.Millisecond)

	sim.InjectEvent(pilottypes.Event{
		Kind:  pilottypes.EventLoginResult,
		Login: &pilottypes.LoginResult{Success: false},
	})
	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "Login failed")
	}, time.Second, 10*time.Millisecond)
}

func TestPumpOffersEventsToWaitersFirst(t *testing.T) {
	s, sim, buf := testSession(t)

	w, err := s.waits.Register(pilottypes.EventContactMessage, "")
	require.NoError(t, err)

	sim.InjectEvent(messageFrom("alice", "for the waiter"))

	ev, err := s.waits.Await(context.Background(), w, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "for the waiter", ev.Message.Text)
	assert.NotContains(t, buf.String(), "for the waiter", "claimed events are not shown passively")
}

func TestPumpEndsQuietlyWhenLinkCloses(t *testing.T) {
	s, sim, _ := newSession(t, devicesim.DefaultScenario())
	require.NoError(t, sim.Close())

	err := s.Pump(context.Background())
	assert.ErrorIs(t, err, errClosed)
}

func TestPumpReportsDisconnectReason(t *testing.T) {
	s, sim, _ := newSession(t, devicesim.DefaultScenario())
	require.NoError(t, sim.Reboot(context.Background()))

	err := s.Pump(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, errClosed)
	assert.Contains(t, err.Error(), "connection lost")
	assert.Contains(t, err.Error(), "device rebooting")
}
