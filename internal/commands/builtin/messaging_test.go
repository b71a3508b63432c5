package builtin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshpilot/internal/commands"
	"meshpilot/internal/device/devicesim"
	"meshpilot/internal/store"
	"meshpilot/pkg/pilottypes"
)

func TestMsgCommandSends(t *testing.T) {
	t.Run("machine mode reports the expected ack", func(t *testing.T) {
		env, _, buf, _ := testEnv(t)
		env.Machine = true

		err := (&MsgCommand{}).Execute(env, []string{"alice", "hello"})
		require.NoError(t, err)

		code := devicesim.AckFor(devicesim.IdentityFor("alice"), "hello")
		assert.Contains(t, buf.String(), string(code))
	})

	t.Run("text mode is silent", func(t *testing.T) {
		env, _, buf, _ := testEnv(t)
		require.NoError(t, (&MsgCommand{}).Execute(env, []string{"alice", "hello"}))
		assert.Empty(t, buf.String())
	})

	t.Run("unknown contact", func(t *testing.T) {
		env, _, _, _ := testEnv(t)
		err := (&MsgCommand{}).Execute(env, []string{"nobody", "hello"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown contact")
	})

	t.Run("archives the outbound message", func(t *testing.T) {
		env, _, _, _ := testEnv(t)
		archive := withArchive(t, env)

		require.NoError(t, (&MsgCommand{}).Execute(env, []string{"alice", "hello"}))

		entries, err := archive.Recent("alice", 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, store.Out, entries[0].Direction)
		assert.Equal(t, "hello", entries[0].Text)
		assert.False(t, entries[0].Acked)
	})
}

func TestSendCommandWaitsForAck(t *testing.T) {
	env, _, buf, sess := testEnv(t)
	archive := withArchive(t, env)
	env.Machine = true

	err := (&SendCommand{}).Execute(env, []string{"alice", "hi there"})
	require.NoError(t, err)

	assert.Equal(t, []bool{true}, sess.acks)
	assert.Contains(t, buf.String(), `"acked":true`)

	entries, err := archive.Recent("alice", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Acked, "the archived entry is marked delivered")
}

func TestSendCommandTimeout(t *testing.T) {
	sc := &devicesim.Scenario{
		Contacts: []devicesim.ContactConfig{
			{Name: "mute", Kind: "chat", DropAcks: true, SuggestTimeoutMS: 40},
		},
	}
	env, _, buf, sess := testEnvWith(t, sc)

	err := (&SendCommand{}).Execute(env, []string{"mute", "anyone there"})
	require.NoError(t, err, "a missing ack is reported, not returned")

	assert.Equal(t, []bool{false}, sess.acks)
	assert.Contains(t, buf.String(), "Timeout waiting ack")
}

func TestChanCommand(t *testing.T) {
	t.Run("broadcasts on a numbered channel", func(t *testing.T) {
		env, _, buf, _ := testEnv(t)
		env.Machine = true
		require.NoError(t, (&ChanCommand{}).Execute(env, []string{"1", "campfire at eight"}))
		assert.Contains(t, buf.String(), `"channel":1`)
	})

	t.Run("rejects a non-numeric channel", func(t *testing.T) {
		env, _, _, _ := testEnv(t)
		err := (&ChanCommand{}).Execute(env, []string{"x", "hello"})
		var ue *commands.UsageError
		require.ErrorAs(t, err, &ue)
	})

	t.Run("out of range channel fails", func(t *testing.T) {
		env, _, _, _ := testEnv(t)
		err := (&ChanCommand{}).Execute(env, []string{"9", "hello"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	})
}

func TestPublicCommandArchivesUnderLabel(t *testing.T) {
	env, _, _, _ := testEnv(t)
	archive := withArchive(t, env)

	require.NoError(t, (&PublicCommand{}).Execute(env, []string{"morning all"}))

	entries, err := archive.Recent("public", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].Channel)
}

func TestRecvCommand(t *testing.T) {
	env, sim, buf, _ := testEnv(t)

	sim.QueueMessage(messageFrom("alice", "are you on the ridge"))
	require.NoError(t, (&RecvCommand{}).Execute(env, nil))
	assert.Contains(t, buf.String(), "alice: are you on the ridge")

	buf.Reset()
	require.NoError(t, (&RecvCommand{}).Execute(env, nil))
	assert.Contains(t, buf.String(), "No more messages")
}

func TestSyncMsgsDrainsQueue(t *testing.T) {
	env, sim, buf, _ := testEnv(t)
	archive := withArchive(t, env)

	sim.QueueMessage(messageFrom("alice", "first"))
	sim.QueueMessage(channelMessage(0, "second"))

	require.NoError(t, (&SyncMsgsCommand{}).Execute(env, nil))

	out := buf.String()
	assert.Contains(t, out, "alice: first")
	assert.Contains(t, out, "public: second")

	n, err := archive.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n, "pulled messages land in the archive")
}

func TestSyncMsgsMachineBrackets(t *testing.T) {
	env, sim, buf, _ := testEnv(t)
	env.Machine = true

	sim.QueueMessage(messageFrom("alice", "one"))
	sim.QueueMessage(messageFrom("alice", "two"))

	require.NoError(t, (&SyncMsgsCommand{}).Execute(env, nil))

	out := buf.String()
	assert.True(t, len(out) > 2 && out[0] == '[', "opens a JSON array: %q", out)
	assert.Contains(t, out, `"text":"one"`)
	assert.Contains(t, out, `"text":"two"`)
	assert.Contains(t, out, "]")
}

func TestWaitMsgReceives(t *testing.T) {
	env, sim, buf, _ := testEnv(t)

	time.AfterFunc(20*time.Millisecond, func() {
		sim.InjectEvent(messageFrom("alice", "made it home"))
	})

	require.NoError(t, (&WaitMsgCommand{}).Execute(env, nil))
	assert.Contains(t, buf.String(), "alice: made it home")
}

func TestWaitMsgMatchesChannelTraffic(t *testing.T) {
	env, sim, buf, _ := testEnv(t)

	time.AfterFunc(20*time.Millisecond, func() {
		sim.InjectEvent(channelMessage(2, "weather turning"))
	})

	require.NoError(t, (&WaitMsgCommand{}).Execute(env, nil))
	assert.Contains(t, buf.String(), "ch2: weather turning")
}

func TestTrywaitMsgSilentOnTimeout(t *testing.T) {
	env, _, buf, _ := testEnv(t)
	require.NoError(t, (&TrywaitMsgCommand{}).Execute(env, []string{"0"}))
	assert.Empty(t, buf.String())
}

func TestWaitAckCommand(t *testing.T) {
	env, sim, buf, _ := testEnv(t)

	time.AfterFunc(20*time.Millisecond, func() {
		sim.InjectEvent(pilottypes.Event{Kind: pilottypes.EventAck, AckCode: "00ffa1b2"})
	})

	require.NoError(t, (&WaitAckCommand{}).Execute(env, nil))
	assert.Contains(t, buf.String(), "Msg acked")
}
