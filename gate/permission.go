package gate

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wardenbot/warden/capstore"
)

// Static lookup tables mapping command metadata to capability tokens. The
// requirement for a command is the union of all three lookups, deduplicated;
// two commands with identical metadata always resolve to the same set.

// platform permission name -> capability token
var permissionCapabilities = map[string]string{
	"administrator":    "bot.admin",
	"manage_guild":     "community.manage",
	"manage_messages":  "mod.messages",
	"ban_members":      "mod.ban",
	"kick_members":     "mod.kick",
	"moderate_members": "mod.basic",
}

// command category -> capability token
var categoryCapabilities = map[string]string{
	"admin":      "bot.admin",
	"config":     "community.manage",
	"moderation": "mod.basic",
}

// exact command name -> capability token
var commandCapabilities = map[string]string{
	"ban":       "mod.ban",
	"unban":     "mod.ban",
	"kick":      "mod.kick",
	"warn":      "mod.basic",
	"purge":     "mod.messages",
	"configure": "community.manage",
	"shutdown":  "bot.admin",
}

// Requirements resolves the capability token set a command demands. Pure
// function of the command's declared metadata; result is sorted, which fixes
// the order tokens are checked in.
func Requirements(cmd *Command) []string {
	set := make(map[string]bool)
	for _, p := range cmd.Permissions {
		if tok, ok := permissionCapabilities[p]; ok {
			set[tok] = true
		}
	}
	if tok, ok := categoryCapabilities[cmd.Category]; ok {
		set[tok] = true
	}
	if tok, ok := commandCapabilities[cmd.Name]; ok {
		set[tok] = true
	}
	out := make([]string, 0, len(set))
	for tok := range set {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// PermissionGuard confirms every required capability token against the
// capability store. Runs at the highest priority so it only evaluates
// already-validated, already-rate-limited traffic. Store failures deny (fail
// closed).
type PermissionGuard struct {
	Caps capstore.CapabilityStore

	// requirement sets memoized per command name
	reqCache *lru.Cache[string, []string]
}

var _ Guard = (*PermissionGuard)(nil)

func NewPermissionGuard(caps capstore.CapabilityStore) *PermissionGuard {
	cache, _ := lru.New[string, []string](512)
	return &PermissionGuard{
		Caps:     caps,
		reqCache: cache,
	}
}

func (g *PermissionGuard) Name() string { return "permission" }

func (g *PermissionGuard) requirements(cmd *Command) []string {
	if req, ok := g.reqCache.Get(cmd.Name); ok {
		return req
	}
	req := Requirements(cmd)
	g.reqCache.Add(cmd.Name, req)
	return req
}

func (g *PermissionGuard) Evaluate(c *Context) Outcome {
	if c.Command == nil {
		// validation did not run or did not resolve a command; deny
		c.Logger.Error("permission guard reached without resolved command")
		c.Reply("something went wrong handling that command, please try again")
		return Stop
	}

	req := g.requirements(c.Command)
	if len(req) == 0 {
		c.RequiredCaps = req
		return Continue
	}

	// tokens checked in sorted order, stopping at the first denial
	for _, tok := range req {
		held, err := g.Caps.HasCapability(c.Ctx, c.Event.ActorID, tok)
		if err != nil {
			capabilityStoreErrors.Inc()
			c.Logger.Error("capability store lookup failed", "token", tok, "err", err)
			c.Reply("couldn't verify your permissions right now, please try again later")
			return Stop
		}
		if !held {
			capabilityDenials.WithLabelValues(tok).Inc()
			msg := fmt.Sprintf("you need the %q capability to use %s", tok, c.Command.Name)
			if len(req) > 1 {
				msg += fmt.Sprintf(" (requires: %s)", strings.Join(req, ", "))
			}
			c.Reply(msg)
			return Stop
		}
	}

	roles, err := g.Caps.RolesOf(c.Ctx, c.Event.ActorID)
	if err != nil {
		capabilityStoreErrors.Inc()
		c.Logger.Error("role lookup failed", "err", err)
		c.Reply("couldn't verify your permissions right now, please try again later")
		return Stop
	}

	c.RequiredCaps = req
	c.ActorRoles = roles
	return Continue
}
