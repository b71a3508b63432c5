package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshpilot/internal/registry"
	"meshpilot/pkg/pilottypes"
)

func testView(t *testing.T) (View, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	reg.Add(pilottypes.Contact{Identity: "ab12", Name: "Bob", Kind: pilottypes.KindChat})
	reg.Add(pilottypes.Contact{Identity: "cd34", Name: "ridge-rpt", Kind: pilottypes.KindRepeater})
	reg.Add(pilottypes.Contact{Identity: "ef56", Name: "chris", Kind: pilottypes.KindChat})
	return View{
		Current:  pilottypes.SelfTarget(),
		SelfName: "base-1",
		Contacts: reg,
	}, reg
}

func TestResolveEmptyTokenKeepsCurrent(t *testing.T) {
	view, _ := testView(t)
	for _, current := range []pilottypes.Target{
		pilottypes.NoTarget(),
		pilottypes.SelfTarget(),
		pilottypes.ChannelTarget(3),
	} {
		view.Current = current
		got, err := Resolve("", view)
		require.NoError(t, err)
		assert.True(t, got.Equal(current), "empty token is a no-op for %v", current)
	}
}

func TestResolveChannels(t *testing.T) {
	view, _ := testView(t)

	tests := []struct {
		token   string
		channel int
		wantErr error
	}{
		{token: "public", channel: 0},
		{token: "ch0", channel: 0},
		{token: "ch7", channel: 7},
		{token: "ch-1", wantErr: ErrNotFound},
		{token: "ch1x", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := Resolve(tt.token, view)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, pilottypes.TargetChannel, got.Kind)
			assert.Equal(t, tt.channel, got.Channel)
		})
	}
}

func TestResolveChPrefixedNameIsNotAChannel(t *testing.T) {
	view, _ := testView(t)
	got, err := Resolve("chris", view)
	require.NoError(t, err)
	require.Equal(t, pilottypes.TargetContact, got.Kind)
	assert.Equal(t, "chris", got.Contact.Name)
}

func TestResolveSelfAliases(t *testing.T) {
	view, _ := testView(t)
	view.Current = pilottypes.ChannelTarget(0)
	for _, token := range []string{"~", "/", "base-1"} {
		got, err := Resolve(token, view)
		require.NoError(t, err, "token %q", token)
		assert.Equal(t, pilottypes.TargetSelf, got.Kind, "token %q", token)
	}
}

func TestResolveContactByName(t *testing.T) {
	view, _ := testView(t)

	got, err := Resolve("Bob", view)
	require.NoError(t, err)
	require.Equal(t, pilottypes.TargetContact, got.Kind)
	assert.Equal(t, "ab12", got.Contact.Identity)

	_, err = Resolve("xyz", view)
	assert.ErrorIs(t, err, ErrNotFound)

	// Lookup is case sensitive
	_, err = Resolve("bob", view)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveIsIdempotent(t *testing.T) {
	view, _ := testView(t)
	for _, token := range []string{"Bob", "ridge-rpt", "public", "ch2", "~"} {
		first, err := Resolve(token, view)
		require.NoError(t, err)
		second, err := Resolve(token, view)
		require.NoError(t, err)
		assert.True(t, first.Equal(second), "token %q resolves the same twice", token)
	}
}

func TestResolveDuplicateNamesFirstMatchWins(t *testing.T) {
	view, reg := testView(t)
	reg.Add(pilottypes.Contact{Identity: "9999", Name: "Bob", Kind: pilottypes.KindChat})

	got, err := Resolve("Bob", view)
	require.NoError(t, err)
	assert.Equal(t, "ab12", got.Contact.Identity, "earlier entry wins")
}

func TestResolveLastSender(t *testing.T) {
	view, _ := testView(t)

	_, err := Resolve("!", view)
	assert.ErrorIs(t, err, ErrNoLastSender)

	sender := pilottypes.ContactTarget(&pilottypes.Contact{Identity: "ab12", Name: "Bob", Kind: pilottypes.KindChat})
	view.LastSender = &sender
	got, err := Resolve("!", view)
	require.NoError(t, err)
	require.Equal(t, pilottypes.TargetContact, got.Kind)
	assert.Equal(t, "Bob", got.Contact.Name)

	// A channel message overwrites the slot too; "!" then replies on-channel.
	chSender := pilottypes.ChannelTarget(2)
	view.LastSender = &chSender
	got, err = Resolve("!", view)
	require.NoError(t, err)
	require.Equal(t, pilottypes.TargetChannel, got.Kind)
	assert.Equal(t, 2, got.Channel)
}

func TestResolvePrevious(t *testing.T) {
	view, _ := testView(t)

	_, err := Resolve("..", view)
	assert.ErrorIs(t, err, ErrNoPrevious)

	// After navigating T0 -> T1 -> T2, ".." lands on T1 only.
	t1, err := Resolve("Bob", view)
	require.NoError(t, err)
	view.Previous = view.Current // T0 into the slot
	view.Current = t1

	t2, err := Resolve("public", view)
	require.NoError(t, err)
	view.Previous = view.Current // T1 into the slot
	view.Current = t2

	got, err := Resolve("..", view)
	require.NoError(t, err)
	assert.True(t, got.Equal(t1), "single-level undo returns T1, not T0")
}

func TestResolveNeverMutatesRegistry(t *testing.T) {
	view, reg := testView(t)
	before := reg.Len()
	_, _ = Resolve("Bob", view)
	_, _ = Resolve("nope", view)
	_, _ = Resolve("ch3", view)
	assert.Equal(t, before, reg.Len())
}
