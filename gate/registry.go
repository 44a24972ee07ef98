package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// HandlerFunc is downstream command business logic, invoked by the
// dispatcher only after the pipeline admits the interaction.
type HandlerFunc func(ctx context.Context, ev InteractionEvent) error

// Command is the declared metadata for one named interaction command.
type Command struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	// Platform permission names the command declares (eg "ban_members").
	Permissions []string `json:"permissions,omitempty"`
	// Platform permission bitfield the acting member must hold in-community.
	MemberPermissions int64 `json:"member_permissions,omitempty"`

	Handler HandlerFunc `json:"-"`
}

// Registry is the process-wide command table consulted by the validation and
// permission guards.
type Registry struct {
	mu   sync.RWMutex
	cmds map[string]*Command
}

func NewRegistry() *Registry {
	return &Registry{cmds: make(map[string]*Command)}
}

func (r *Registry) Register(cmd *Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds[cmd.Name] = cmd
}

func (r *Registry) Get(name string) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cmds[name]
}

func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, c)
	}
	return out
}

// SetHandler attaches business logic to an already registered command.
// Commands without a handler are rejected by the validation guard.
func (r *Registry) SetHandler(name string, fn HandlerFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.cmds[name]
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}
	cmd.Handler = fn
	return nil
}

// LoadFromFileJSON loads command declarations from a JSON array. Handlers are
// not part of the file; attach them with SetHandler.
func (r *Registry) LoadFromFileJSON(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var cmds []Command
	if err := json.Unmarshal(raw, &cmds); err != nil {
		return fmt.Errorf("parsing command file %s: %w", path, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range cmds {
		cmd := cmds[i]
		r.cmds[cmd.Name] = &cmd
	}
	return nil
}
