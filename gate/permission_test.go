package gate

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequirementsUnion(t *testing.T) {
	assert := assert.New(t)

	// union of permission-derived, category, and name lookups, deduped+sorted
	req := Requirements(&Command{
		Name:        "ban",
		Category:    "moderation",
		Permissions: []string{"ban_members", "administrator"},
	})
	assert.Equal([]string{"bot.admin", "mod.ban", "mod.basic"}, req)

	// identical metadata resolves identically
	req2 := Requirements(&Command{
		Name:        "ban",
		Category:    "moderation",
		Permissions: []string{"ban_members", "administrator"},
	})
	assert.Equal(req, req2)

	// nothing declared, nothing required
	assert.Empty(Requirements(&Command{Name: "ping", Category: "general"}))
}

func TestPermissionEmptyRequirementAlwaysPasses(t *testing.T) {
	assert := assert.New(t)
	p, replier, _, _, _ := PipelineTestFixture()

	ok := runOne(p, InteractionEvent{ActorID: "nobody", CommandName: "ping", Kind: KindCommand})
	assert.True(ok)
	assert.Empty(replier.Replies)
}

func TestPermissionDenialNamesToken(t *testing.T) {
	assert := assert.New(t)
	p, replier, _, _, _ := PipelineTestFixture()

	ok := runOne(p, InteractionEvent{ActorID: "actor-1", CommandName: "shutdown", Kind: KindCommand})
	assert.False(ok)
	assert.Len(replier.Replies, 1)
	assert.Contains(replier.Replies[0], "bot.admin")
}

func TestPermissionDenialNamesFullListWhenMultiple(t *testing.T) {
	assert := assert.New(t)
	p, replier, _, caps, _ := PipelineTestFixture()

	// "ban" requires mod.ban (name + declared permission) and mod.basic (category)
	caps.Grant("actor-1", "mod.ban")
	ok := runOne(p, InteractionEvent{ActorID: "actor-1", CommandName: "ban", Kind: KindCommand})
	assert.False(ok)
	assert.Contains(replier.Replies[0], "mod.basic")
	assert.Contains(replier.Replies[0], "mod.ban, mod.basic")
}

func TestPermissionAdmissionMonotonic(t *testing.T) {
	assert := assert.New(t)
	p, _, _, caps, lim := PipelineTestFixture()

	ev := InteractionEvent{ActorID: "actor-1", CommandName: "ban", Kind: KindCommand}
	assert.False(runOne(p, ev))

	caps.Grant("actor-1", "mod.ban")
	lim.Reset()
	assert.False(runOne(p, ev))

	// adding the last missing capability turns denial into admission
	caps.Grant("actor-1", "mod.basic")
	lim.Reset()
	assert.True(runOne(p, ev))

	// and granting more never reverses it
	caps.Grant("actor-1", "bot.admin")
	lim.Reset()
	assert.True(runOne(p, ev))
}

type failingCapStore struct{}

func (failingCapStore) HasCapability(ctx context.Context, actorID, token string) (bool, error) {
	return true, errors.New("store unavailable")
}

func (failingCapStore) RolesOf(ctx context.Context, actorID string) ([]string, error) {
	return nil, errors.New("store unavailable")
}

func TestPermissionFailsClosedOnStoreError(t *testing.T) {
	assert := assert.New(t)

	replier := &CaptureReplier{}
	p := NewPipeline(nil, replier)
	reg := NewRegistry()
	reg.Register(&Command{Name: "ban", Category: "moderation", Handler: noopHandler})
	p.Register(NewValidationGuard(reg), PriorityValidation)
	p.Register(NewPermissionGuard(failingCapStore{}), PriorityPermission)

	ok := p.Run(context.Background(), InteractionEvent{ActorID: "a", CommandName: "ban", Kind: KindCommand})
	assert.False(ok)
	assert.Len(replier.Replies, 1)
}

func TestPermissionResolvesContextFields(t *testing.T) {
	assert := assert.New(t)
	_, _, _, caps, _ := PipelineTestFixture()

	caps.Grant("actor-1", "mod.ban", "mod.basic")
	caps.SetRoles("actor-1", []string{"moderator"})

	g := NewPermissionGuard(caps)
	c := &Context{
		Ctx:      context.Background(),
		Logger:   slog.Default(),
		Event:    InteractionEvent{ActorID: "actor-1", CommandName: "ban", Kind: KindCommand},
		Command:  &Command{Name: "ban", Category: "moderation", Permissions: []string{"ban_members"}},
		pipeline: NewPipeline(nil, nil),
	}
	assert.Equal(Continue, g.Evaluate(c))
	assert.Equal([]string{"mod.ban", "mod.basic"}, c.RequiredCaps)
	assert.Equal([]string{"moderator"}, c.ActorRoles)
}
