package gate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitGuardDistinctReplies(t *testing.T) {
	assert := assert.New(t)
	p, replier, _, _, _ := PipelineTestFixture()

	ev := InteractionEvent{ActorID: "actor-1", CommandName: "ping", Kind: KindCommand}
	for i := 0; i < 10; i++ {
		assert.True(runOne(p, ev))
	}

	// 11th rejects with the actor-scope wording
	assert.False(runOne(p, ev))
	assert.Len(replier.Replies, 1)
	assert.Contains(replier.Replies[0], "too quickly")
}

func TestRateLimitGuardGlobalReply(t *testing.T) {
	assert := assert.New(t)
	p, replier, _, _, lim := PipelineTestFixture()
	_ = lim

	// exhaust the global window with many distinct actors
	for i := 0; i < 1000; i++ {
		ev := InteractionEvent{ActorID: fmt.Sprintf("actor-%d", i), CommandName: "ping", Kind: KindCommand}
		assert.True(runOne(p, ev))
	}

	ok := runOne(p, InteractionEvent{ActorID: "late-actor", CommandName: "ping", Kind: KindCommand})
	assert.False(ok)
	assert.Contains(replier.Replies[len(replier.Replies)-1], "too many requests")
}
