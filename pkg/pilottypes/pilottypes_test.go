package pilottypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContactKind(t *testing.T) {
	t.Run("String names", func(t *testing.T) {
		assert.Equal(t, "chat", KindChat.String())
		assert.Equal(t, "repeater", KindRepeater.String())
		assert.Equal(t, "room", KindRoom.String())
		assert.Equal(t, "sensor", KindSensor.String())
		assert.Equal(t, "unknown", ContactKind(0).String())
	})

	t.Run("ParseContactKind round trip", func(t *testing.T) {
		for _, k := range []ContactKind{KindChat, KindRepeater, KindRoom, KindSensor} {
			got, ok := ParseContactKind(k.String())
			assert.True(t, ok)
			assert.Equal(t, k, got)
		}
	})

	t.Run("ParseContactKind rejects garbage", func(t *testing.T) {
		_, ok := ParseContactKind("carrier-pigeon")
		assert.False(t, ok)
	})
}

func TestContact(t *testing.T) {
	c := Contact{
		Identity: "f2a9c04d00112233445566778899aabbccddeeff00112233445566778899aabb",
		Name:     "alpha",
		Kind:     KindChat,
	}

	t.Run("IdentityPrefix truncates", func(t *testing.T) {
		assert.Equal(t, "f2a9c0", c.IdentityPrefix(6))
		assert.Equal(t, c.Identity, c.IdentityPrefix(200))
	})

	t.Run("FloodPath reflects empty out path", func(t *testing.T) {
		assert.True(t, c.FloodPath())
		c.OutPath = "23,5a"
		assert.False(t, c.FloodPath())
	})
}

func TestTarget(t *testing.T) {
	alpha := &Contact{Identity: "aa11", Name: "alpha", Kind: KindChat}
	beta := &Contact{Identity: "bb22", Name: "beta", Kind: KindRoom}

	t.Run("constructors set kind", func(t *testing.T) {
		assert.Equal(t, TargetNone, NoTarget().Kind)
		assert.Equal(t, TargetSelf, SelfTarget().Kind)
		assert.Equal(t, TargetContact, ContactTarget(alpha).Kind)
		assert.Equal(t, TargetChannel, ChannelTarget(2).Kind)
	})

	t.Run("Equal compares contacts by identity", func(t *testing.T) {
		clone := &Contact{Identity: "aa11", Name: "renamed", Kind: KindChat}
		assert.True(t, ContactTarget(alpha).Equal(ContactTarget(clone)))
		assert.False(t, ContactTarget(alpha).Equal(ContactTarget(beta)))
	})

	t.Run("Equal compares channels by index", func(t *testing.T) {
		assert.True(t, ChannelTarget(0).Equal(ChannelTarget(0)))
		assert.False(t, ChannelTarget(0).Equal(ChannelTarget(3)))
		assert.False(t, ChannelTarget(0).Equal(SelfTarget()))
	})

	t.Run("String tokens", func(t *testing.T) {
		assert.Equal(t, "~", SelfTarget().String())
		assert.Equal(t, "alpha", ContactTarget(alpha).String())
		assert.Equal(t, "public", ChannelTarget(0).String())
		assert.Equal(t, "ch3", ChannelTarget(3).String())
		assert.Equal(t, "", NoTarget().String())
	})
}

func TestEvent(t *testing.T) {
	t.Run("Token only on acks", func(t *testing.T) {
		ack := Event{Kind: EventAck, AckCode: AckCodeFromBytes([]byte{0xde, 0xad})}
		assert.Equal(t, "dead", ack.Token())

		msg := Event{Kind: EventContactMessage, Message: &Message{Text: "hi"}}
		assert.Equal(t, "", msg.Token())
	})

	t.Run("AckCode zero check", func(t *testing.T) {
		assert.True(t, AckCode("").IsZero())
		assert.False(t, AckCodeFromBytes([]byte{1}).IsZero())
	})

	t.Run("kind names", func(t *testing.T) {
		assert.Equal(t, "ack", EventAck.String())
		assert.Equal(t, "channel_msg", EventChannelMessage.String())
		assert.Equal(t, "unknown", EventKind(99).String())
	})
}

func TestDeviceInfoSelfContact(t *testing.T) {
	info := DeviceInfo{Name: "base-1", PublicKey: "cafe01", FirmwareVersion: "1.7.0"}
	self := info.SelfContact()
	assert.Equal(t, "base-1", self.Name)
	assert.Equal(t, "cafe01", self.Identity)
	assert.Equal(t, KindChat, self.Kind)
}

func TestMessageDirectness(t *testing.T) {
	direct := Message{PathLen: DirectPathLen, Timestamp: time.Unix(1700000000, 0)}
	assert.Equal(t, 255, direct.PathLen)
}
