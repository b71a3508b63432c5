package builtin

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meshpilot/internal/await"
	"meshpilot/internal/commands"
	"meshpilot/internal/config"
	"meshpilot/internal/device/devicesim"
	"meshpilot/internal/output"
	"meshpilot/internal/registry"
	"meshpilot/internal/store"
	"meshpilot/pkg/pilottypes"
)

// fakeSession records the session interactions commands make.
type fakeSession struct {
	reg     *registry.Registry
	current pilottypes.Target
	chats   []pilottypes.Target
	quits   int
	acks    []bool
}

func (s *fakeSession) Current() pilottypes.Target { return s.current }

func (s *fakeSession) Resolve(token string) (pilottypes.Target, error) {
	switch token {
	case "~":
		return pilottypes.SelfTarget(), nil
	case "public":
		return pilottypes.ChannelTarget(0), nil
	}
	if s.reg != nil {
		if c, ok := s.reg.FindByName(token); ok {
			return pilottypes.ContactTarget(c), nil
		}
	}
	return pilottypes.NoTarget(), fmt.Errorf("contact %s not found", token)
}

func (s *fakeSession) Navigate(t pilottypes.Target) bool {
	changed := !s.current.Equal(t)
	s.current = t
	return changed
}

func (s *fakeSession) LastSender() (pilottypes.Target, bool) { return pilottypes.Target{}, false }
func (s *fakeSession) SetLastAck(ok bool)                    { s.acks = append(s.acks, ok) }
func (s *fakeSession) Self() pilottypes.DeviceInfo           { return pilottypes.DeviceInfo{} }
func (s *fakeSession) RequestChat(t pilottypes.Target)       { s.chats = append(s.chats, t) }
func (s *fakeSession) RequestQuit()                          { s.quits++ }

// testEnv wires a command environment against the default simulator
// scenario, with a pump draining simulator events into the coordinator the
// way the session does.
func testEnv(t *testing.T) (*commands.Env, *devicesim.Sim, *bytes.Buffer, *fakeSession) {
	t.Helper()
	return testEnvWith(t, devicesim.DefaultScenario())
}

func testEnvWith(t *testing.T, sc *devicesim.Scenario) (*commands.Env, *devicesim.Sim, *bytes.Buffer, *fakeSession) {
	t.Helper()

	sim := devicesim.New(sc)
	t.Cleanup(func() { _ = sim.Close() })

	reg := registry.New()
	contacts, err := sim.Contacts(context.Background())
	require.NoError(t, err)
	reg.ReplaceAll(contacts)

	waits := await.New()
	go func() {
		for ev := range sim.Events() {
			waits.Deliver(ev)
		}
	}()

	opts := config.NewOptions()
	opts.SetColor(false)

	buf := &bytes.Buffer{}
	sess := &fakeSession{reg: reg}
	env := &commands.Env{
		Ctx:      context.Background(),
		Link:     sim,
		Registry: reg,
		Waits:    waits,
		Options:  opts,
		Printer:  output.New(opts, output.WithWriter(buf)),
		Session:  sess,
	}
	return env, sim, buf, sess
}

// withArchive attaches an in-memory message archive to the environment.
func withArchive(t *testing.T, env *commands.Env) *store.Archive {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	a, err := store.NewFromDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	env.Archive = a
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
