package gate

// InteractionKind is the platform-level interaction sub-type.
type InteractionKind string

const (
	KindCommand      InteractionKind = "command"
	KindComponent    InteractionKind = "component"
	KindAutocomplete InteractionKind = "autocomplete"
	KindModal        InteractionKind = "modal"
)

// InteractionEvent is a normalized structured command invocation, as
// delivered by the dispatcher. CommunityID is empty for direct messages.
type InteractionEvent struct {
	ActorID     string            `json:"actor_id"`
	CommunityID string            `json:"community_id,omitempty"`
	ChannelID   string            `json:"channel_id,omitempty"`
	CommandName string            `json:"command_name"`
	Kind        InteractionKind   `json:"kind"`
	Options     map[string]string `json:"options,omitempty"`
	// MemberPermissions is the platform-declared permission bitfield the
	// actor holds in the community; zero outside communities.
	MemberPermissions int64 `json:"member_permissions,omitempty"`
}

// InCommunity reports whether the event occurred inside a community (vs a
// direct message).
func (ev *InteractionEvent) InCommunity() bool {
	return ev.CommunityID != ""
}
