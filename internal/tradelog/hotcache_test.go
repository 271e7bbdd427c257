package tradelog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHotCache_PutThenLatest(t *testing.T) {
	h := NewHotCache()

	r := Record{RunID: "trade_20260101T000000Z_abcd1234", Symbol: "QQQ", BarIndex: 5, Action: "BUY"}
	require.NoError(t, h.Put(r))

	got, ok := h.Latest(r.RunID, r.Symbol)
	require.True(t, ok)
	assert.Equal(t, r, got)
}

func TestHotCache_LatestMissReturnsFalse(t *testing.T) {
	h := NewHotCache()

	_, ok := h.Latest("trade_nonexistent", "TQQQ")
	assert.False(t, ok)
}

func TestHotCache_OverwritesPreviousRecordForSameKey(t *testing.T) {
	h := NewHotCache()

	first := Record{RunID: "trade_run1", Symbol: "QQQ", BarIndex: 1, Action: "HOLD"}
	second := Record{RunID: "trade_run1", Symbol: "QQQ", BarIndex: 2, Action: "SELL"}
	require.NoError(t, h.Put(first))
	require.NoError(t, h.Put(second))

	got, ok := h.Latest("trade_run1", "QQQ")
	require.True(t, ok)
	assert.Equal(t, second, got)
}

func TestMemoryRecordCache_ExpiresAfterTTL(t *testing.T) {
	c := newMemoryRecordCache()
	c.set("k", Record{Symbol: "QQQ"}, time.Millisecond)

	time.Sleep(5 * time.Millisecond)

	_, ok := c.get("k")
	assert.False(t, ok, "expected expired entry to be evicted on read")
}

func TestMemoryRecordCache_ZeroTTLNeverExpires(t *testing.T) {
	c := newMemoryRecordCache()
	c.set("k", Record{Symbol: "QQQ"}, 0)

	_, ok := c.get("k")
	assert.True(t, ok)
}

func TestHotCacheKey_IncludesRunAndSymbol(t *testing.T) {
	k1 := hotCacheKey("trade_a", "QQQ")
	k2 := hotCacheKey("trade_a", "TQQQ")
	k3 := hotCacheKey("trade_b", "QQQ")

	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}
