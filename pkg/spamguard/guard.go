package spamguard

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config carries the SPAM_GUARD_* knobs.
type Config struct {
	Enabled         bool
	MaxIdentical    int
	BanDuration     time.Duration
	RateMaxMessages int
	RateWindow      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MaxIdentical:    5,
		BanDuration:     60 * time.Second,
		RateMaxMessages: 10,
		RateWindow:      10 * time.Second,
	}
}

// InFlightMessage is one entry of a user's current bubble.
type InFlightMessage struct {
	MessageID  string
	Text       string
	ReceivedAt time.Time
}

// Decision is the outcome of evaluating one inbound message.
type Decision struct {
	ShouldProcess        bool
	IsSpam               bool
	Reason               string
	RemainingBanMs       int64
	SupersedePrevious    bool
	SuppressedMessageIDs []string
	Context              []InFlightMessage
}

type userState struct {
	mu              sync.Mutex
	inFlight        []InFlightMessage
	identicalCounts map[string]int
}

// Guard is the in-memory spam and bubble-chat controller. Per-user state is
// guarded by a per-user lock; bans and rate windows share coarser locks
// because they are read-mostly.
type Guard struct {
	cfg Config

	usersMu sync.Mutex
	users   map[string]*userState

	bansMu      sync.Mutex
	textBans    map[string]time.Time // village:user:normText -> expiry
	rateBans    map[string]time.Time // village:user -> expiry
	rateWindows map[string][]time.Time

	gcOnce sync.Once
	stopCh chan struct{}
}

func NewGuard(cfg Config) *Guard {
	if cfg.MaxIdentical <= 0 {
		cfg.MaxIdentical = 5
	}
	if cfg.BanDuration <= 0 {
		cfg.BanDuration = 60 * time.Second
	}
	if cfg.RateMaxMessages <= 0 {
		cfg.RateMaxMessages = 10
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = 10 * time.Second
	}
	return &Guard{
		cfg:         cfg,
		users:       make(map[string]*userState),
		textBans:    make(map[string]time.Time),
		rateBans:    make(map[string]time.Time),
		rateWindows: make(map[string][]time.Time),
		stopCh:      make(chan struct{}),
	}
}

func userKey(villageID, userID string) string { return villageID + ":" + userID }

func normalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Evaluate runs the decision procedure in its fixed order: rate ban, text
// ban, rate window, identical count, bubble logic.
func (g *Guard) Evaluate(villageID, userID, messageID, text string) Decision {
	now := time.Now()

	if !g.cfg.Enabled {
		return Decision{
			ShouldProcess: true,
			Context:       []InFlightMessage{{MessageID: messageID, Text: text, ReceivedAt: now}},
		}
	}

	key := userKey(villageID, userID)
	norm := normalizeText(text)

	// 1+2: active bans.
	g.bansMu.Lock()
	if until, ok := g.rateBans[key]; ok {
		if now.Before(until) {
			remaining := until.Sub(now).Milliseconds()
			g.bansMu.Unlock()
			logrus.Debugf("[SPAM] Rate ban active for %s, %dms remaining", key, remaining)
			return Decision{IsSpam: true, Reason: "rate_ban", RemainingBanMs: remaining}
		}
		delete(g.rateBans, key)
	}
	textKey := key + ":" + norm
	if until, ok := g.textBans[textKey]; ok {
		if now.Before(until) {
			remaining := until.Sub(now).Milliseconds()
			g.bansMu.Unlock()
			logrus.Debugf("[SPAM] Text ban active for %s, %dms remaining", textKey, remaining)
			return Decision{IsSpam: true, Reason: "text_ban", RemainingBanMs: remaining}
		}
		delete(g.textBans, textKey)
	}

	// 3: sliding rate window.
	window := g.rateWindows[key]
	cutoff := now.Add(-g.cfg.RateWindow)
	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	g.rateWindows[key] = kept
	if len(kept) > g.cfg.RateMaxMessages {
		g.rateBans[key] = now.Add(g.cfg.BanDuration)
		g.bansMu.Unlock()
		logrus.Warnf("[SPAM] Rate flood from %s (%d msgs in window), banned for %s",
			key, len(kept), g.cfg.BanDuration)
		return Decision{IsSpam: true, Reason: "rate_flood", RemainingBanMs: g.cfg.BanDuration.Milliseconds()}
	}
	g.bansMu.Unlock()

	// 4: identical count within the current bubble.
	u := g.user(key)
	u.mu.Lock()
	defer u.mu.Unlock()

	u.identicalCounts[norm]++
	if u.identicalCounts[norm] > g.cfg.MaxIdentical {
		g.bansMu.Lock()
		g.textBans[textKey] = now.Add(g.cfg.BanDuration)
		g.bansMu.Unlock()
		logrus.Warnf("[SPAM] Identical flood %q from %s, text banned for %s",
			norm, key, g.cfg.BanDuration)
		return Decision{IsSpam: true, Reason: "identical_flood", RemainingBanMs: g.cfg.BanDuration.Milliseconds()}
	}

	// 5: bubble logic.
	entry := InFlightMessage{MessageID: messageID, Text: text, ReceivedAt: now}
	previous := append([]InFlightMessage(nil), u.inFlight...)
	u.inFlight = append(u.inFlight, entry)

	if len(previous) == 0 {
		return Decision{
			ShouldProcess: true,
			Context:       []InFlightMessage{entry},
		}
	}

	suppressed := make([]string, len(previous))
	for i, m := range previous {
		suppressed[i] = m.MessageID
	}
	return Decision{
		ShouldProcess:        true,
		SupersedePrevious:    true,
		SuppressedMessageIDs: suppressed,
		Context:              append(previous, entry),
	}
}

// ClearInFlight drops the user's bubble after a successful AI reply.
func (g *Guard) ClearInFlight(villageID, userID string) {
	key := userKey(villageID, userID)
	g.usersMu.Lock()
	u, ok := g.users[key]
	g.usersMu.Unlock()
	if !ok {
		return
	}
	u.mu.Lock()
	u.inFlight = nil
	u.identicalCounts = make(map[string]int)
	u.mu.Unlock()
}

// CancelUser aborts all tracking for a user (takeover started).
func (g *Guard) CancelUser(villageID, userID string) {
	key := userKey(villageID, userID)
	g.usersMu.Lock()
	delete(g.users, key)
	g.usersMu.Unlock()

	g.bansMu.Lock()
	delete(g.rateWindows, key)
	g.bansMu.Unlock()
}

// InFlight returns a copy of the user's current bubble.
func (g *Guard) InFlight(villageID, userID string) []InFlightMessage {
	key := userKey(villageID, userID)
	g.usersMu.Lock()
	u, ok := g.users[key]
	g.usersMu.Unlock()
	if !ok {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]InFlightMessage(nil), u.inFlight...)
}

func (g *Guard) user(key string) *userState {
	g.usersMu.Lock()
	defer g.usersMu.Unlock()
	u, ok := g.users[key]
	if !ok {
		u = &userState{identicalCounts: make(map[string]int)}
		g.users[key] = u
	}
	return u
}

// StartGC sweeps stale state every interval: in-flight entries older than
// maxInFlightAge, expired bans, empty rate windows.
func (g *Guard) StartGC(interval, maxInFlightAge time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if maxInFlightAge <= 0 {
		maxInFlightAge = 5 * time.Minute
	}
	g.gcOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					g.gc(time.Now(), maxInFlightAge)
				case <-g.stopCh:
					return
				}
			}
		}()
	})
}

func (g *Guard) Stop() {
	select {
	case <-g.stopCh:
	default:
		close(g.stopCh)
	}
}

func (g *Guard) gc(now time.Time, maxInFlightAge time.Duration) {
	cutoff := now.Add(-maxInFlightAge)

	g.usersMu.Lock()
	users := make(map[string]*userState, len(g.users))
	for k, u := range g.users {
		users[k] = u
	}
	g.usersMu.Unlock()

	for key, u := range users {
		u.mu.Lock()
		kept := u.inFlight[:0]
		for _, m := range u.inFlight {
			if m.ReceivedAt.After(cutoff) {
				kept = append(kept, m)
			}
		}
		u.inFlight = kept
		empty := len(u.inFlight) == 0
		if empty {
			u.identicalCounts = make(map[string]int)
		}
		u.mu.Unlock()

		if empty {
			g.usersMu.Lock()
			if cur, ok := g.users[key]; ok && cur == u {
				delete(g.users, key)
			}
			g.usersMu.Unlock()
		}
	}

	g.bansMu.Lock()
	for k, until := range g.textBans {
		if !now.Before(until) {
			delete(g.textBans, k)
		}
	}
	for k, until := range g.rateBans {
		if !now.Before(until) {
			delete(g.rateBans, k)
		}
	}
	windowCutoff := now.Add(-g.cfg.RateWindow)
	for k, window := range g.rateWindows {
		kept := window[:0]
		for _, ts := range window {
			if ts.After(windowCutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(g.rateWindows, k)
		} else {
			g.rateWindows[k] = kept
		}
	}
	g.bansMu.Unlock()

	logrus.Debug("[SPAM] GC sweep finished")
}
