package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterMatches(t *testing.T) {
	record := Record{Type: TypeStakeClaimed, Attributes: map[string]string{"account": "0xAbC"}}
	require.True(t, Filter{}.Matches(record))
	require.True(t, Filter{Type: TypeStakeClaimed, Account: "0xabc"}.Matches(record))
	require.False(t, Filter{Type: TypeStakeDeposited}.Matches(record))
	require.False(t, Filter{Account: "0xdef"}.Matches(record))
}

func TestBroadcasterDeliversMatching(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe(Filter{Type: TypeStakeDeposited}, 4)
	defer sub.Close()

	b.Publish([]Record{{Type: TypeStakeClaimed}, {Type: TypeStakeDeposited, Timestamp: 7}})
	select {
	case record := <-sub.C:
		require.Equal(t, uint64(7), record.Timestamp)
	default:
		t.Fatal("expected a record")
	}
	require.Len(t, sub.C, 0)
}

func TestBroadcasterDropsSlowSubscriber(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe(Filter{}, 2)
	b.Publish(make([]Record, 3))

	select {
	case <-sub.Dropped():
	default:
		t.Fatal("expected subscriber to be dropped")
	}
	require.Zero(t, b.Len())
	sub.Close()
	require.Zero(t, b.Len())
}
