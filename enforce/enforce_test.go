package enforce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenbot/warden/offense"
)

type captureSanctioner struct {
	mu   sync.Mutex
	bans []*offense.BanRecord
}

func (s *captureSanctioner) ApplySanction(ctx context.Context, ev MessageEvent, ban *offense.BanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bans = append(s.bans, ban)
	return nil
}

func (s *captureSanctioner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bans)
}

type captureNotifier struct {
	warnings  []int
	sanctions int
}

func (n *captureNotifier) Warn(ctx context.Context, ev MessageEvent, count, max int) error {
	n.warnings = append(n.warnings, count)
	return nil
}

func (n *captureNotifier) Sanctioned(ctx context.Context, ev MessageEvent, ban *offense.BanRecord) error {
	n.sanctions++
	return nil
}

func automatonFixture(t *testing.T, cfg offense.EnforcementConfig) (*Automaton, *offense.MemStore, *captureSanctioner, *captureNotifier) {
	t.Helper()
	store := offense.NewMemStore()
	require.NoError(t, store.SetConfig(context.Background(), cfg))
	sanctions := &captureSanctioner{}
	notices := &captureNotifier{}
	return NewAutomaton(nil, store, sanctions, notices), store, sanctions, notices
}

func msg(actor string) MessageEvent {
	return MessageEvent{ActorID: actor, CommunityID: "comm-1", ChannelID: "chan-1", Text: "some message"}
}

func TestDisabledIsNoOp(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	a, store, _, _ := automatonFixture(t, offense.EnforcementConfig{
		Enabled: false, MaxOffenses: 1, BanDurationHours: 1,
	})

	dec, err := a.ProcessMessage(ctx, msg("actor-1"), true)
	assert.NoError(err)
	assert.Equal(ActionNone, dec.Action)

	rec, err := store.GetOffender(ctx, "actor-1", "comm-1")
	assert.NoError(err)
	assert.Nil(rec)
}

func TestBotAuthorIgnored(t *testing.T) {
	assert := assert.New(t)
	a, _, _, _ := automatonFixture(t, offense.EnforcementConfig{
		Enabled: true, MaxOffenses: 1, BanDurationHours: 1,
	})

	ev := msg("warden-bot")
	ev.IsBotAuthor = true
	dec, err := a.ProcessMessage(context.Background(), ev, true)
	assert.NoError(err)
	assert.Equal(ActionNone, dec.Action)
}

func TestEscalationToSanction(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	a, store, sanctions, notices := automatonFixture(t, offense.EnforcementConfig{
		Enabled: true, MaxOffenses: 3, BanDurationHours: 24, WhitelistEnabled: true,
	})

	// first two violations warn
	for i := 1; i <= 2; i++ {
		dec, err := a.ProcessMessage(ctx, msg("actor-1"), true)
		assert.NoError(err)
		assert.Equal(ActionWarned, dec.Action)
		assert.Equal(i, dec.OffenseCount)
		assert.Equal(3, dec.MaxOffenses)
	}
	assert.Equal([]int{1, 2}, notices.warnings)

	// non-violations in between change nothing
	dec, err := a.ProcessMessage(ctx, msg("actor-1"), false)
	assert.NoError(err)
	assert.Equal(ActionNone, dec.Action)

	// the third violation crosses the inclusive threshold exactly
	dec, err = a.ProcessMessage(ctx, msg("actor-1"), true)
	assert.NoError(err)
	assert.Equal(ActionSanctioned, dec.Action)
	assert.Equal(3, dec.OffenseCount)
	if assert.NotNil(dec.Ban) {
		assert.True(dec.Ban.IsActive)
		if assert.NotNil(dec.Ban.ExpiresAt) {
			assert.InDelta(24*time.Hour, time.Until(*dec.Ban.ExpiresAt), float64(time.Minute))
		}
	}
	assert.Equal(1, sanctions.count())
	assert.Equal(1, notices.sanctions)

	rec, err := store.GetOffender(ctx, "actor-1", "comm-1")
	assert.NoError(err)
	if assert.NotNil(rec) {
		assert.Equal(3, rec.OffenseCount)
		assert.True(rec.IsBanned)
	}

	// while the ban is in force, further violations take no new action
	dec, err = a.ProcessMessage(ctx, msg("actor-1"), true)
	assert.NoError(err)
	assert.Equal(ActionNone, dec.Action)
	assert.Equal(1, sanctions.count())
}

func TestThresholdBoundaryExact(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	a, store, _, _ := automatonFixture(t, offense.EnforcementConfig{
		Enabled: true, MaxOffenses: 3, BanDurationHours: 24,
	})

	// seed an actor one short of the threshold
	require.NoError(t, store.UpsertOffender(ctx, &offense.OffenderRecord{
		ActorID: "actor-1", CommunityID: "comm-1", OffenseCount: 2, LastOffenseAt: time.Now(),
	}))

	dec, err := a.ProcessMessage(ctx, msg("actor-1"), true)
	assert.NoError(err)
	assert.Equal(ActionSanctioned, dec.Action)
	assert.Equal(3, dec.OffenseCount)

	rec, err := store.GetOffender(ctx, "actor-1", "comm-1")
	assert.NoError(err)
	if assert.NotNil(rec) {
		assert.True(rec.IsBanned)
	}
}

func TestPermanentBan(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	a, _, _, _ := automatonFixture(t, offense.EnforcementConfig{
		Enabled: true, MaxOffenses: 1, BanDurationHours: 0,
	})

	dec, err := a.ProcessMessage(ctx, msg("actor-1"), true)
	assert.NoError(err)
	assert.Equal(ActionSanctioned, dec.Action)
	if assert.NotNil(dec.Ban) {
		// zero hours means permanent, not already expired
		assert.Nil(dec.Ban.ExpiresAt)
	}
}

func TestWhitelistPrecedence(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	a, store, sanctions, _ := automatonFixture(t, offense.EnforcementConfig{
		Enabled: true, MaxOffenses: 2, BanDurationHours: 24, WhitelistEnabled: true,
	})

	// whitelisted actor with an existing non-zero count
	require.NoError(t, store.UpsertOffender(ctx, &offense.OffenderRecord{
		ActorID: "actor-1", CommunityID: "comm-1", OffenseCount: 1, LastOffenseAt: time.Now(),
	}))
	require.NoError(t, store.AddWhitelist(ctx, "actor-1", "mod-9"))

	dec, err := a.ProcessMessage(ctx, msg("actor-1"), true)
	assert.NoError(err)
	assert.Equal(ActionNone, dec.Action)
	assert.Equal(0, sanctions.count())

	// offense count unchanged
	rec, err := store.GetOffender(ctx, "actor-1", "comm-1")
	assert.NoError(err)
	assert.Equal(1, rec.OffenseCount)

	// whitelist only protects while enabled in config
	cfg, _ := store.GetConfig(ctx)
	cfg.WhitelistEnabled = false
	require.NoError(t, store.SetConfig(ctx, cfg))

	dec, err = a.ProcessMessage(ctx, msg("actor-1"), true)
	assert.NoError(err)
	assert.Equal(ActionSanctioned, dec.Action)
}

func TestLazyBanExpiry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	a, store, _, _ := automatonFixture(t, offense.EnforcementConfig{
		Enabled: true, MaxOffenses: 5, BanDurationHours: 1,
	})

	// sanctioned actor whose ban expired an hour ago
	require.NoError(t, store.UpsertOffender(ctx, &offense.OffenderRecord{
		ActorID: "actor-1", CommunityID: "comm-1", OffenseCount: 3, IsBanned: true,
	}))
	expired := time.Now().Add(-time.Hour)
	require.NoError(t, store.CreateBan(ctx, &offense.BanRecord{
		ActorID: "actor-1", CommunityID: "comm-1", Reason: "old", IssuedBy: "system",
		ExpiresAt: &expired, IsActive: true,
	}))

	// a clean message lifts the ban but takes no action
	dec, err := a.ProcessMessage(ctx, msg("actor-1"), false)
	assert.NoError(err)
	assert.Equal(ActionNone, dec.Action)

	rec, err := store.GetOffender(ctx, "actor-1", "comm-1")
	assert.NoError(err)
	if assert.NotNil(rec) {
		assert.False(rec.IsBanned)
		// count kept as history
		assert.Equal(3, rec.OffenseCount)
	}
	ban, err := store.GetActiveBan(ctx, "actor-1", "comm-1")
	assert.NoError(err)
	assert.Nil(ban)
}

func TestExpiredBanThenViolationEvaluatesFresh(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	a, store, sanctions, _ := automatonFixture(t, offense.EnforcementConfig{
		Enabled: true, MaxOffenses: 3, BanDurationHours: 1,
	})

	require.NoError(t, store.UpsertOffender(ctx, &offense.OffenderRecord{
		ActorID: "actor-1", CommunityID: "comm-1", OffenseCount: 3, IsBanned: true,
	}))
	expired := time.Now().Add(-time.Minute)
	require.NoError(t, store.CreateBan(ctx, &offense.BanRecord{
		ActorID: "actor-1", CommunityID: "comm-1", Reason: "old", IssuedBy: "system",
		ExpiresAt: &expired, IsActive: true,
	}))

	// historical count is already at the threshold, so a fresh violation
	// re-sanctions immediately
	dec, err := a.ProcessMessage(ctx, msg("actor-1"), true)
	assert.NoError(err)
	assert.Equal(ActionSanctioned, dec.Action)
	assert.Equal(4, dec.OffenseCount)
	assert.Equal(1, sanctions.count())
}

type failingStore struct {
	offense.Store
}

func (failingStore) GetOffender(ctx context.Context, actorID, communityID string) (*offense.OffenderRecord, error) {
	return nil, errors.New("store unavailable")
}

func TestStoreFailureNeverSanctions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mem := offense.NewMemStore()
	require.NoError(t, mem.SetConfig(ctx, offense.EnforcementConfig{
		Enabled: true, MaxOffenses: 1, BanDurationHours: 1,
	}))
	sanctions := &captureSanctioner{}
	a := NewAutomaton(nil, failingStore{Store: mem}, sanctions, &captureNotifier{})

	dec, err := a.ProcessMessage(ctx, msg("actor-1"), true)
	assert.Error(err)
	assert.Equal(ActionNone, dec.Action)
	assert.Equal(0, sanctions.count())
}

func TestManualResetObservedAsClean(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	a, store, _, notices := automatonFixture(t, offense.EnforcementConfig{
		Enabled: true, MaxOffenses: 2, BanDurationHours: 24,
	})

	// escalate to a sanction
	_, err := a.ProcessMessage(ctx, msg("actor-1"), true)
	require.NoError(t, err)
	dec, err := a.ProcessMessage(ctx, msg("actor-1"), true)
	require.NoError(t, err)
	require.Equal(t, ActionSanctioned, dec.Action)

	// moderator resets via the admin path
	require.NoError(t, store.ResetOffender(ctx, "actor-1", "comm-1"))

	// fully clean: the next violation starts the escalation over at 1
	dec, err = a.ProcessMessage(ctx, msg("actor-1"), true)
	assert.NoError(err)
	assert.Equal(ActionWarned, dec.Action)
	assert.Equal(1, dec.OffenseCount)
	_ = notices
}
