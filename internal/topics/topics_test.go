package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		topic     string
		want      Address
		wantError bool
	}{
		{
			name:  "entry command",
			topic: "highway/TB-NORTH-1/entry/manual/commands",
			want: Address{
				TollboothID: "TB-NORTH-1",
				Direction:   DirectionEntry,
				Channel:     ChannelManual,
				Leaf:        LeafCommands,
			},
		},
		{
			name:  "camera request",
			topic: "highway/TB-NORTH-1/exit/camera/requests",
			want: Address{
				TollboothID: "TB-NORTH-1",
				Direction:   DirectionExit,
				Channel:     ChannelCamera,
				Leaf:        LeafRequests,
			},
		},
		{
			name:  "global price request",
			topic: "highway/requests/tollprice",
			want:  Address{Leaf: LeafTollPrice, Global: true},
		},
		{
			name:      "wrong prefix",
			topic:     "railway/TB-1/entry/manual/commands",
			wantError: true,
		},
		{
			name:      "too few segments",
			topic:     "highway/TB-1/entry",
			wantError: true,
		},
		{
			name:      "too many segments",
			topic:     "highway/TB-1/entry/manual/commands/extra",
			wantError: true,
		},
		{
			name:      "bare prefix",
			topic:     "highway",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := Parse(tt.topic)
			if tt.wantError {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTopic)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, addr)
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	topic := Commands("TB-NORTH-1", DirectionEntry, ChannelTelepass)
	assert.Equal(t, "highway/TB-NORTH-1/entry/telepass/commands", topic)

	addr, err := Parse(topic)
	require.NoError(t, err)
	assert.Equal(t, topic, addr.String())
}

func TestBuilders(t *testing.T) {
	assert.Equal(t, "highway/TB-1/exit/manual/events", Events("TB-1", DirectionExit, ChannelManual))
	assert.Equal(t, "highway/TB-1/entry/telepass/responses", Responses("TB-1", DirectionEntry, ChannelTelepass))
	assert.Equal(t, "highway/TB-1/exit/manual/state", State("TB-1", DirectionExit, ChannelManual))
	assert.Equal(t, "highway/TB-1/entry/camera/requests", CameraRequests("TB-1", DirectionEntry))
	assert.Equal(t, "highway/requests/tollprice", TollPriceRequests)
}

func TestGlobalString(t *testing.T) {
	addr, err := Parse(TollPriceRequests)
	require.NoError(t, err)
	assert.True(t, addr.Global)
	assert.Equal(t, TollPriceRequests, addr.String())
}
