package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ace Roofing", "ace roofing"},
		{"  ACE   ROOFING  ", "ace roofing"},
		{"Ace-Roofing, LLC.", "ace roofing llc"},
		{"O'Brien & Sons", "obrien sons"},
		{"ace_roofing", "ace roofing"},
		{"123 Fix-It", "123 fix it"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeKey(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeKeyCollapsesVariants(t *testing.T) {
	// Different spellings of the same business must collide.
	variants := []string{"Ace Roofing", "ace   roofing", "Ace-Roofing", "ACE ROOFING!!"}
	for _, v := range variants {
		assert.Equal(t, "ace roofing", NormalizeKey(v), v)
	}
}

func TestContactPointsUsable(t *testing.T) {
	c := ContactPoints{Email: "a@x.test", Phone: "555"}

	assert.True(t, c.Usable(ChannelEmail))
	assert.True(t, c.Usable(ChannelSMS))
	assert.False(t, c.Usable(ChannelMessage))
	assert.False(t, c.Usable(ChannelForm))
	assert.False(t, c.Usable(Channel("carrier-pigeon")))
}

func TestContactPointsChannelsPreferenceOrder(t *testing.T) {
	c := ContactPoints{MessageID: "m1", Email: "a@x.test", Phone: "555", FormURL: "https://x.test/f"}
	assert.Equal(t, []Channel{ChannelMessage, ChannelEmail, ChannelSMS, ChannelForm}, c.Channels())

	assert.Nil(t, ContactPoints{}.Channels())
}

func TestAttemptResponded(t *testing.T) {
	assert.False(t, OutreachAttempt{}.Responded())
	assert.True(t, OutreachAttempt{Response: ResponseDeclined}.Responded())
	assert.True(t, OutreachAttempt{Response: ResponseInterested}.Responded())
}
