package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshpilot/internal/config"
	"meshpilot/pkg/pilottypes"
)

// plainPrinter returns a printer with color disabled so rendered output is
// deterministic regardless of the terminal running the tests.
func plainPrinter() (*Printer, *config.Options, *bytes.Buffer) {
	opts := config.NewOptions()
	opts.SetColor(false)
	var buf bytes.Buffer
	return New(opts, WithWriter(&buf)), opts, &buf
}

func TestPrintlnAndPrintf(t *testing.T) {
	p, _, buf := plainPrinter()
	p.Println("hello")
	p.Printf("%d contacts\n", 3)
	assert.Equal(t, "hello\n3 contacts\n", buf.String())
}

func TestStyledLinesStripCleanly(t *testing.T) {
	p, _, buf := plainPrinter()
	p.Errorf("no such contact: %s", "ghost")
	p.Successf("delivered")
	p.Warnf("unacknowledged")
	assert.Equal(t, "no such contact: ghost\ndelivered\nunacknowledged\n", buf.String())
}

func TestResultTextMode(t *testing.T) {
	p, _, buf := plainPrinter()

	p.Result("plain answer", false)
	assert.Equal(t, "plain answer\n", buf.String())
	buf.Reset()

	p.Result(map[string]any{"bat": 4096, "airtime": 12}, false)
	assert.Equal(t, "airtime: 12\nbat: 4096\n", buf.String(), "map keys render sorted")
	buf.Reset()

	p.Result(nil, false)
	assert.Empty(t, buf.String(), "nil results print nothing")
}

func TestResultMachineMode(t *testing.T) {
	p, _, buf := plainPrinter()

	p.Result(map[string]any{"bat": 4096}, true)
	assert.JSONEq(t, `{"bat":4096}`, buf.String())
	buf.Reset()

	p.Result("text", true)
	assert.Equal(t, "\"text\"\n", buf.String(), "strings are JSON-quoted in machine mode")
}

func TestMachineValue(t *testing.T) {
	assert.Equal(t, `{"a":1}`, MachineValue(map[string]any{"a": 1}))
	assert.Equal(t, `"x"`, MachineValue("x"))
	assert.Equal(t, `[1,2]`, MachineValue([]int{1, 2}))
}

func TestMessageRendering(t *testing.T) {
	stamp := time.Date(2026, 3, 14, 15, 4, 5, 0, time.UTC)

	t.Run("direct message", func(t *testing.T) {
		p, _, buf := plainPrinter()
		p.Message(MessageView{
			Kind:      pilottypes.KindChat,
			FromLabel: "alice",
			Channel:   -1,
			Text:      "hello",
			Timestamp: stamp,
		})
		assert.Equal(t, "15:04:05 alice: hello\n", buf.String())
	})

	t.Run("channel message uses channel label", func(t *testing.T) {
		p, _, buf := plainPrinter()
		p.Message(MessageView{FromLabel: "ignored", Channel: 0, Text: "hi all", Timestamp: stamp})
		assert.Equal(t, "15:04:05 public: hi all\n", buf.String())

		buf.Reset()
		p.Message(MessageView{Channel: 2, Text: "hi ch2", Timestamp: stamp})
		assert.Equal(t, "15:04:05 ch2: hi ch2\n", buf.String())
	})

	t.Run("command reply separator", func(t *testing.T) {
		p, _, buf := plainPrinter()
		p.Message(MessageView{
			Kind:         pilottypes.KindRepeater,
			FromLabel:    "ridge-rpt",
			Channel:      -1,
			Text:         "ok",
			CommandReply: true,
			Timestamp:    stamp,
		})
		assert.Equal(t, "15:04:05 ridge-rpt> ok\n", buf.String())
	})

	t.Run("snr shown only when enabled", func(t *testing.T) {
		p, opts, buf := plainPrinter()
		view := MessageView{FromLabel: "alice", Channel: -1, Text: "hi", SNR: 8.25, HasSNR: true, Timestamp: stamp}

		p.Message(view)
		assert.Equal(t, "15:04:05 alice: hi\n", buf.String())

		buf.Reset()
		opts.SetPrintSNR(true)
		p.Message(view)
		assert.Equal(t, "15:04:05 alice: hi (8.2dB)\n", buf.String())
	})

	t.Run("json_msgs renders an object", func(t *testing.T) {
		p, opts, buf := plainPrinter()
		opts.SetJSONMessages(true)
		p.Message(MessageView{
			FromLabel: "alice",
			Channel:   -1,
			Text:      "hi",
			PathLen:   pilottypes.DirectPathLen,
			Timestamp: stamp,
		})

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "alice", entry["from"])
		assert.Equal(t, "hi", entry["text"])
		assert.Equal(t, true, entry["direct"])
		assert.NotContains(t, entry, "channel")
	})
}

func TestPrompt(t *testing.T) {
	p, _, _ := plainPrinter()

	alice := &pilottypes.Contact{Identity: "aa01", Name: "alice", Kind: pilottypes.KindChat}

	assert.Equal(t, "alice> ", p.Prompt(pilottypes.ContactTarget(alice), false))
	assert.Equal(t, "alice!> ", p.Prompt(pilottypes.ContactTarget(alice), true))
	assert.Equal(t, "public> ", p.Prompt(pilottypes.ChannelTarget(0), false))
	assert.Equal(t, "~> ", p.Prompt(pilottypes.SelfTarget(), false))
	assert.Equal(t, "?> ", p.Prompt(pilottypes.NoTarget(), false))
}

func TestContactLine(t *testing.T) {
	p, _, _ := plainPrinter()

	c := pilottypes.Contact{
		Identity: "f2a9c04d00112233445566778899aabbccddeeff00112233445566778899aabb",
		Name:     "ridge-rpt",
		Kind:     pilottypes.KindRepeater,
		OutPath:  "23,5a",
	}
	assert.Equal(t, "ridge-rpt f2a9c04d0011  [repeater, 23,5a]", p.ContactLine(c))

	c.OutPath = ""
	assert.Equal(t, "ridge-rpt f2a9c04d0011  [repeater, flood]", p.ContactLine(c))
}

func TestSetWriterRedirects(t *testing.T) {
	p, _, buf := plainPrinter()
	p.Println("first")

	var other bytes.Buffer
	p.SetWriter(&other)
	p.Println("second")

	assert.Equal(t, "first\n", buf.String())
	assert.Equal(t, "second\n", other.String())
}
