package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"vestake/core/events"
)

const (
	alice = "0x00000000000000000000000000000000000000Aa"
	bob   = "0x00000000000000000000000000000000000000bB"
)

func openTestDB(t *testing.T) *Indexer {
	t.Helper()
	db, err := Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	idx, err := New(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func record(typ, account string, ts uint64) events.Record {
	return events.Record{
		Type:      typ,
		Timestamp: ts,
		Attributes: map[string]string{
			"account": account,
			"amount":  "100",
		},
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestStoreAssignsSequenceAndQueriesNewestFirst(t *testing.T) {
	idx := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, idx.Store(ctx, []events.Record{
		record(events.TypeStakeDeposited, alice, 10),
		record(events.TypeStakeClaimed, alice, 20),
	}))
	idx.Publish([]events.Record{record(events.TypeStakeDeposited, bob, 30)})

	all, err := idx.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []uint64{3, 2, 1}, []uint64{all[0].Sequence, all[1].Sequence, all[2].Sequence})
	require.Equal(t, bob, all[0].Account)
	require.Equal(t, "100", all[0].Attributes["amount"])
	_, err = uuid.Parse(all[0].ID)
	require.NoError(t, err)

	byAccount, err := idx.Query(ctx, Filter{Account: alice})
	require.NoError(t, err)
	require.Len(t, byAccount, 2)

	byType, err := idx.Query(ctx, Filter{Type: events.TypeStakeDeposited, Limit: 1})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	require.Equal(t, uint64(3), byType[0].Sequence)
}

func TestSequenceResumesAfterReopen(t *testing.T) {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	first, err := New(db, nil)
	require.NoError(t, err)
	require.NoError(t, first.Store(context.Background(), []events.Record{record(events.TypeStakeClaimed, alice, 1)}))

	second, err := New(db, nil)
	require.NoError(t, err)
	require.NoError(t, second.Store(context.Background(), []events.Record{record(events.TypeStakeClaimed, alice, 2)}))

	entries, err := second.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(2), entries[0].Sequence)
	require.NoError(t, second.Close())
}

func TestExportCSVIsChronologicalWithChecksum(t *testing.T) {
	idx := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, idx.Store(ctx, []events.Record{
		record(events.TypeStakeDeposited, alice, 10),
		record(events.TypeStakeWithdrawn, alice, 20),
	}))

	data, checksum, err := idx.Export(ctx, Filter{Account: alice}, FormatCSV)
	require.NoError(t, err)
	sum := sha256.Sum256(data)
	require.Equal(t, hex.EncodeToString(sum[:]), checksum)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], events.TypeStakeDeposited)
	require.Contains(t, lines[2], events.TypeStakeWithdrawn)
}

func TestExportFormats(t *testing.T) {
	idx := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, idx.Store(ctx, []events.Record{record(events.TypeStakeClaimed, alice, 5)}))

	data, _, err := idx.Export(ctx, Filter{}, FormatJSONL)
	require.NoError(t, err)
	require.Contains(t, string(data), `"type":"stake.claimed"`)

	data, _, err = idx.Export(ctx, Filter{}, FormatParquet)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "PAR1"))

	_, _, err = idx.Export(ctx, Filter{}, Format("xml"))
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestStoreIgnoresEmptyBatch(t *testing.T) {
	idx := openTestDB(t)
	require.NoError(t, idx.Store(context.Background(), nil))
	entries, err := idx.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Empty(t, entries)
}
