package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerID(t *testing.T) {
	t.Run("哨兵值", func(t *testing.T) {
		assert.False(t, NullID.IsValidSource())
		assert.False(t, AnnounceID.IsValidSource())
		assert.False(t, BroadcastID.IsValidSource())
		assert.True(t, PeerID(0x4D15).IsValidSource())
	})

	t.Run("字符串", func(t *testing.T) {
		assert.Equal(t, "0x4D15", PeerID(0x4D15).String())
		assert.Equal(t, "0x0001", PeerID(1).String())
	})

	t.Run("解析", func(t *testing.T) {
		for in, want := range map[string]PeerID{
			"0x4D15": 0x4D15,
			"4d15h":  0x4D15,
			"19733":  0x4D15,
			" 0X1 ":  1,
		} {
			got, err := ParsePeerID(in)
			require.NoError(t, err, in)
			assert.Equal(t, want, got, in)
		}

		_, err := ParsePeerID("0x10000")
		assert.ErrorIs(t, err, ErrInvalidPeerID)
		_, err = ParsePeerID("ship")
		assert.ErrorIs(t, err, ErrInvalidPeerID)
	})

	t.Run("JSON 文本", func(t *testing.T) {
		var v struct {
			ID PeerID `json:"id"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"id":"0x4001"}`), &v))
		assert.Equal(t, PeerID(0x4001), v.ID)

		out, err := json.Marshal(v)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"0x4001"}`, string(out))
	})
}

func TestPeerKind(t *testing.T) {
	k, err := ParsePeerKind("UUV")
	require.NoError(t, err)
	assert.Equal(t, KindVehicle, k)

	k, err = ParsePeerKind("ccu")
	require.NoError(t, err)
	assert.Equal(t, KindConsole, k)

	_, err = ParsePeerKind("toaster")
	assert.ErrorIs(t, err, ErrUnknownPeerKind)
}

func TestAuthority(t *testing.T) {
	var a Authority
	require.NoError(t, a.UnmarshalText([]byte("off")))
	assert.Equal(t, AuthorityOff, a)
	assert.False(t, a.WantsHeartbeat())

	require.NoError(t, a.UnmarshalText([]byte("on")))
	assert.Equal(t, AuthorityFull, a)
	assert.True(t, a.WantsHeartbeat())

	assert.Error(t, a.UnmarshalText([]byte("maybe")))
}

func TestOutcome(t *testing.T) {
	assert.False(t, OutcomePending.IsTerminal())
	assert.True(t, OutcomeTimeout.IsTerminal())
	assert.True(t, OutcomeUncertain.Delivered())
	assert.False(t, OutcomeUnreachable.Delivered())
	assert.Equal(t, "unreachable", OutcomeUnreachable.String())
}

func TestMessage(t *testing.T) {
	m := NewMessage("Heartbeat", []byte{1, 2})
	assert.Equal(t, NullID, m.Header.Dst)
	assert.Equal(t, DefaultEntity, m.Header.SrcEntity)

	now := time.Unix(1700000000, 250_000_000)
	m.Stamp(now)
	assert.WithinDuration(t, now, m.Time(), time.Microsecond)

	c := m.Clone()
	c.Payload[0] = 9
	assert.Equal(t, byte(1), m.Payload[0])
}

func TestLocation(t *testing.T) {
	l := LocationFromRadians(0.7217, -0.1523, 3)
	lat, lon := l.Radians()
	assert.InDelta(t, 0.7217, lat, 1e-12)
	assert.InDelta(t, -0.1523, lon, 1e-12)
	assert.InDelta(t, 41.35, l.Lat, 0.01)
}

func TestTransportKind(t *testing.T) {
	k, ok := ParseTransportKind("tcp")
	assert.True(t, ok)
	assert.Equal(t, TransportTCP, k)
	_, ok = ParseTransportKind("quic")
	assert.False(t, ok)
}
