package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshpilot/internal/commands"
	"meshpilot/internal/store"
	"meshpilot/pkg/pilottypes"
)

func TestHelpCommand(t *testing.T) {
	t.Run("plain table without color", func(t *testing.T) {
		env, _, buf, _ := testEnv(t)
		require.NoError(t, (&HelpCommand{}).Execute(env, nil))

		out := buf.String()
		assert.Contains(t, out, "msg")
		assert.Contains(t, out, "wait_ack")
		assert.Contains(t, out, "(m, {)")
	})

	t.Run("describes one verb", func(t *testing.T) {
		env, _, buf, _ := testEnv(t)
		require.NoError(t, (&HelpCommand{}).Execute(env, []string{"msg"}))

		out := buf.String()
		assert.Contains(t, out, "usage: msg <name> <text>")
		assert.Contains(t, out, "aliases: m, {")
	})

	t.Run("machine mode", func(t *testing.T) {
		env, _, buf, _ := testEnv(t)
		env.Machine = true
		require.NoError(t, (&HelpCommand{}).Execute(env, nil))
		assert.Contains(t, buf.String(), `"command":"msg"`)
	})

	t.Run("unknown verb", func(t *testing.T) {
		env, _, _, _ := testEnv(t)
		err := (&HelpCommand{}).Execute(env, []string{"warp"})
		var ue *commands.UsageError
		require.ErrorAs(t, err, &ue)
	})
}

func TestHistoryCommand(t *testing.T) {
	t.Run("without an archive", func(t *testing.T) {
		env, _, _, _ := testEnv(t)
		err := (&HistoryCommand{}).Execute(env, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "archive")
	})

	t.Run("renders archived traffic", func(t *testing.T) {
		env, _, buf, _ := testEnv(t)
		archive := withArchive(t, env)

		_, err := archive.Record(store.Entry{
			Direction: store.Out, Counterpart: "aa01", CounterpartName: "alice",
			Channel: -1, Text: "on my way", Acked: true,
		})
		require.NoError(t, err)
		_, err = archive.Record(store.Entry{
			Direction: store.In, Counterpart: "aa01", CounterpartName: "alice",
			Channel: -1, Text: "see you soon",
		})
		require.NoError(t, err)

		require.NoError(t, (&HistoryCommand{}).Execute(env, nil))
		out := buf.String()
		assert.Contains(t, out, "> alice: on my way (acked)")
		assert.Contains(t, out, "< alice: see you soon")
	})

	t.Run("filters by name and bounds the count", func(t *testing.T) {
		env, _, buf, _ := testEnv(t)
		archive := withArchive(t, env)

		for _, text := range []string{"one", "two", "three"} {
			_, err := archive.Record(store.Entry{
				Direction: store.In, CounterpartName: "alice", Channel: -1, Text: text,
			})
			require.NoError(t, err)
		}
		_, err := archive.Record(store.Entry{
			Direction: store.In, CounterpartName: "bob", Channel: -1, Text: "unrelated",
		})
		require.NoError(t, err)

		require.NoError(t, (&HistoryCommand{}).Execute(env, []string{"alice", "2"}))
		out := buf.String()
		assert.NotContains(t, out, "one", "the oldest entry falls outside the count")
		assert.Contains(t, out, "two")
		assert.Contains(t, out, "three")
		assert.NotContains(t, out, "unrelated")
	})
}

func TestSleepCommand(t *testing.T) {
	t.Run("returns after the pause", func(t *testing.T) {
		env, _, _, _ := testEnv(t)
		start := time.Now()
		require.NoError(t, (&SleepCommand{}).Execute(env, []string{"0.01"}))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("rejects a negative pause", func(t *testing.T) {
		env, _, _, _ := testEnv(t)
		assert.Error(t, (&SleepCommand{}).Execute(env, []string{"-1"}))
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		env, _, _, _ := testEnv(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		env.Ctx = ctx
		err := (&SleepCommand{}).Execute(env, []string{"60"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestChatCommands(t *testing.T) {
	t.Run("chat requests the current target", func(t *testing.T) {
		env, _, _, sess := testEnv(t)
		alice, _ := env.Registry.FindByName("alice")
		sess.current = pilottypes.ContactTarget(alice)

		require.NoError(t, (&ChatCommand{}).Execute(env, nil))
		require.Len(t, sess.chats, 1)
		assert.True(t, sess.chats[0].Equal(sess.current))
	})

	t.Run("chat_to navigates and chats", func(t *testing.T) {
		env, _, _, sess := testEnv(t)
		require.NoError(t, (&ChatToCommand{}).Execute(env, []string{"alice"}))

		require.Len(t, sess.chats, 1)
		require.Equal(t, pilottypes.TargetContact, sess.current.Kind)
		assert.Equal(t, "alice", sess.current.Contact.Name)
	})

	t.Run("bare chat_to prints the target", func(t *testing.T) {
		env, _, buf, sess := testEnv(t)
		alice, _ := env.Registry.FindByName("alice")
		sess.current = pilottypes.ContactTarget(alice)

		require.NoError(t, (&ChatToCommand{}).Execute(env, nil))
		assert.Contains(t, buf.String(), "alice")
		assert.Empty(t, sess.chats)
	})

	t.Run("unresolved target leaves the session alone", func(t *testing.T) {
		env, _, _, sess := testEnv(t)
		err := (&ChatToCommand{}).Execute(env, []string{"nobody"})
		require.Error(t, err)
		assert.Empty(t, sess.chats)
		assert.Equal(t, pilottypes.TargetNone, sess.current.Kind)
	})
}

func TestQuitCommand(t *testing.T) {
	env, _, _, sess := testEnv(t)
	err := (&QuitCommand{}).Execute(env, nil)
	assert.ErrorIs(t, err, commands.ErrQuit)
	assert.Equal(t, 1, sess.quits)
}
