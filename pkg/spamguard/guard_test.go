package spamguard

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard() *Guard {
	return NewGuard(DefaultConfig())
}

func TestFirstMessageStartsBubble(t *testing.T) {
	g := newGuard()
	d := g.Evaluate("V1", "628111", "m1", "halo")
	require.True(t, d.ShouldProcess)
	assert.False(t, d.SupersedePrevious)
	require.Len(t, d.Context, 1)
	assert.Equal(t, "m1", d.Context[0].MessageID)
}

func TestBubbleSupersede(t *testing.T) {
	g := newGuard()
	g.Evaluate("V1", "628111", "m1", "halo")
	d := g.Evaluate("V1", "628111", "m2", "kamu siapa")

	require.True(t, d.ShouldProcess)
	assert.True(t, d.SupersedePrevious)
	assert.Equal(t, []string{"m1"}, d.SuppressedMessageIDs)
	require.Len(t, d.Context, 2)
	assert.Equal(t, "halo", d.Context[0].Text)
	assert.Equal(t, "kamu siapa", d.Context[1].Text)
}

func TestClearInFlightEndsBubble(t *testing.T) {
	g := newGuard()
	g.Evaluate("V1", "628111", "m1", "halo")
	g.ClearInFlight("V1", "628111")

	d := g.Evaluate("V1", "628111", "m2", "pagi")
	require.True(t, d.ShouldProcess)
	assert.False(t, d.SupersedePrevious, "cleared bubble must not supersede")
	assert.Empty(t, g.InFlight("V1", "628112"))
}

func TestIdenticalFloodBansText(t *testing.T) {
	g := newGuard()
	for i := 1; i <= 5; i++ {
		d := g.Evaluate("V1", "628111", fmt.Sprintf("m%d", i), "ping")
		require.True(t, d.ShouldProcess, "copy %d still bubbles", i)
	}

	d := g.Evaluate("V1", "628111", "m6", "ping")
	assert.False(t, d.ShouldProcess)
	assert.True(t, d.IsSpam)
	assert.Equal(t, "identical_flood", d.Reason)
	assert.Positive(t, d.RemainingBanMs)

	// Same text again hits the text ban directly.
	d = g.Evaluate("V1", "628111", "m7", "ping")
	assert.True(t, d.IsSpam)
	assert.Equal(t, "text_ban", d.Reason)

	// Case and whitespace variants share the normalized ban.
	d = g.Evaluate("V1", "628111", "m8", "  PING ")
	assert.True(t, d.IsSpam)

	// A distinct text is still accepted during the text ban.
	d = g.Evaluate("V1", "628111", "m9", "help")
	assert.True(t, d.ShouldProcess)
}

func TestRateFloodBansUser(t *testing.T) {
	g := newGuard()
	for i := 1; i <= 10; i++ {
		d := g.Evaluate("V1", "628111", fmt.Sprintf("m%d", i), fmt.Sprintf("pesan %d", i))
		require.True(t, d.ShouldProcess, "message %d within window limit", i)
	}

	d := g.Evaluate("V1", "628111", "m11", "pesan 11")
	assert.False(t, d.ShouldProcess)
	assert.Equal(t, "rate_flood", d.Reason)

	// While the rate ban holds, everything is rejected, even new texts.
	d = g.Evaluate("V1", "628111", "m12", "tolong")
	assert.True(t, d.IsSpam)
	assert.Equal(t, "rate_ban", d.Reason)
	assert.Positive(t, d.RemainingBanMs)

	// Other users are unaffected.
	d = g.Evaluate("V1", "628222", "m13", "halo")
	assert.True(t, d.ShouldProcess)
}

func TestRateBanExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateMaxMessages = 2
	cfg.RateWindow = 50 * time.Millisecond
	cfg.BanDuration = 30 * time.Millisecond
	g := NewGuard(cfg)

	g.Evaluate("V1", "628111", "m1", "a")
	g.Evaluate("V1", "628111", "m2", "b")
	d := g.Evaluate("V1", "628111", "m3", "c")
	require.True(t, d.IsSpam)

	time.Sleep(60 * time.Millisecond)
	d = g.Evaluate("V1", "628111", "m4", "d")
	assert.True(t, d.ShouldProcess, "ban and window both expired")
}

func TestCancelUserDropsState(t *testing.T) {
	g := newGuard()
	g.Evaluate("V1", "628111", "m1", "halo")
	g.Evaluate("V1", "628111", "m2", "lagi")
	require.Len(t, g.InFlight("V1", "628111"), 2)

	g.CancelUser("V1", "628111")
	assert.Empty(t, g.InFlight("V1", "628111"))

	d := g.Evaluate("V1", "628111", "m3", "baru")
	assert.False(t, d.SupersedePrevious)
}

func TestTenantsAreIsolated(t *testing.T) {
	g := newGuard()
	for i := 1; i <= 6; i++ {
		g.Evaluate("V1", "628111", fmt.Sprintf("m%d", i), "ping")
	}
	// V1 is text-banned for "ping"; V2 with the same user id is not.
	d := g.Evaluate("V2", "628111", "x1", "ping")
	assert.True(t, d.ShouldProcess)
}

func TestDisabledGuardPassesEverything(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	g := NewGuard(cfg)

	for i := 1; i <= 20; i++ {
		d := g.Evaluate("V1", "628111", fmt.Sprintf("m%d", i), "ping")
		require.True(t, d.ShouldProcess)
		assert.False(t, d.SupersedePrevious)
	}
}

func TestGCEvictsStaleState(t *testing.T) {
	g := newGuard()
	g.Evaluate("V1", "628111", "m1", "halo")
	require.Len(t, g.InFlight("V1", "628111"), 1)

	// Sweep with everything older than "now": the bubble is evicted.
	g.gc(time.Now().Add(10*time.Minute), 5*time.Minute)
	assert.Empty(t, g.InFlight("V1", "628111"))

	// Identical counters died with the bubble.
	for i := 1; i <= 5; i++ {
		d := g.Evaluate("V1", "628111", fmt.Sprintf("n%d", i), "halo")
		require.True(t, d.ShouldProcess)
	}
}
