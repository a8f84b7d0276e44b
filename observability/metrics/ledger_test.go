package metrics

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLedgerMetricsObserveSettlement(t *testing.T) {
	m := Ledger()
	require.Same(t, m, Ledger())

	minted := new(uint256.Int).Mul(uint256.NewInt(3), uint256.NewInt(1_000_000_000_000_000_000))
	before := testutil.ToFloat64(m.capClamps)
	m.ObserveSettlement(minted, uint256.NewInt(1), nil)
	require.Equal(t, before+1, testutil.ToFloat64(m.capClamps))

	m.ObserveOperation("deposit", "")
	m.ObserveOperation("deposit", "InvalidAmount")
	require.GreaterOrEqual(t, testutil.ToFloat64(m.failures.WithLabelValues("deposit", "InvalidAmount")), 1.0)

	m.SetGlobal(minted, minted)
	require.InDelta(t, 3.0, testutil.ToFloat64(m.totalStaked), 1e-9)
}

func TestNilLedgerMetricsIsSafe(t *testing.T) {
	var m *LedgerMetrics
	m.ObserveOperation("claim", "")
	m.ObserveSettlement(nil, nil, nil)
	m.SetGlobal(nil, nil)
}
