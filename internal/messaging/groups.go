package messaging

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/sync/errgroup"

	"github.com/anonto42/shelfstream/internal/models"
	"github.com/anonto42/shelfstream/internal/reconcile"
	"github.com/anonto42/shelfstream/internal/socket"
)

// ErrSuperseded is returned when a newer selection replaced the one a call
// was loading for. Its results were dropped.
var ErrSuperseded = errors.New("selection superseded")

// GroupsAPI is the part of the REST client group views use
type GroupsAPI interface {
	GroupChannels(ctx context.Context, groupID string) ([]models.Channel, error)
	MyRole(ctx context.Context, groupID string) (models.GroupRole, error)
	ChannelMessages(ctx context.Context, channelID string) ([]models.ChannelMessage, error)
	JoinGroup(ctx context.Context, groupID string) error
}

// GroupState is a snapshot of the selected group
type GroupState struct {
	GroupID   string
	Role      models.GroupRole
	Channels  []models.Channel
	ChannelID string
	Messages  []models.ChannelMessage
}

// Groups tracks the selected group, its channels and the open channel
type Groups struct {
	api GroupsAPI

	mu         sync.Mutex
	gen        uint64
	channelGen uint64
	state      GroupState
}

// NewGroups creates an empty group view
func NewGroups(api GroupsAPI) *Groups {
	return &Groups{api: api, state: GroupState{Role: models.RoleNone}}
}

// State returns the current snapshot
func (g *Groups) State() GroupState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Select switches to groupID. Previous channels, messages and role are
// cleared first so nothing of the old group shows while the new one loads.
// Channels and role load concurrently; either may fail without discarding
// the other.
func (g *Groups) Select(ctx context.Context, groupID string) (GroupState, error) {
	g.mu.Lock()
	g.gen++
	gen := g.gen
	g.channelGen++
	g.state = GroupState{GroupID: groupID, Role: models.RoleNone}
	g.mu.Unlock()

	var (
		channels       []models.Channel
		role           models.GroupRole
		chErr, roleErr error
		wg             errgroup.Group
	)
	wg.Go(func() error {
		channels, chErr = g.api.GroupChannels(ctx, groupID)
		return nil
	})
	wg.Go(func() error {
		role, roleErr = g.api.MyRole(ctx, groupID)
		return nil
	})
	_ = wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen {
		jww.DEBUG.Printf("dropping stale load of group %s", groupID)
		return g.state, ErrSuperseded
	}
	if chErr == nil {
		g.state.Channels = channels
	}
	if roleErr == nil && role != "" {
		g.state.Role = role
	}

	switch {
	case chErr != nil && roleErr != nil:
		return g.state, errors.Wrapf(chErr, "failed to load group %s (role: %v)", groupID, roleErr)
	case chErr != nil:
		return g.state, errors.Wrapf(chErr, "failed to load channels of group %s", groupID)
	case roleErr != nil:
		return g.state, errors.Wrapf(roleErr, "failed to load role in group %s", groupID)
	}
	return g.state, nil
}

// OpenChannel loads the messages of channelID within the selected group
func (g *Groups) OpenChannel(ctx context.Context, channelID string) ([]models.ChannelMessage, error) {
	g.mu.Lock()
	g.channelGen++
	gen := g.channelGen
	g.state.ChannelID = channelID
	g.state.Messages = nil
	g.mu.Unlock()

	msgs, err := g.api.ChannelMessages(ctx, channelID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load channel %s", channelID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.channelGen {
		return nil, ErrSuperseded
	}
	for _, m := range g.state.Messages {
		msgs, _ = appendChannelMessage(msgs, m)
	}
	g.state.Messages = msgs
	return msgs, nil
}

// Join makes the viewer a member of the selected group
func (g *Groups) Join(ctx context.Context) error {
	g.mu.Lock()
	groupID := g.state.GroupID
	g.mu.Unlock()
	if groupID == "" {
		return errors.New("no group selected")
	}

	if err := g.api.JoinGroup(ctx, groupID); err != nil {
		return errors.Wrapf(err, "failed to join group %s", groupID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.GroupID == groupID && !g.state.Role.IsMember() {
		g.state.Role = models.RoleMember
	}
	return nil
}

// Bind subscribes to channel message events for the open channel
func (g *Groups) Bind(sub reconcile.Subscriber) (dispose func()) {
	onNew := sub.OnEvent(models.EventChannelMessageNew, func(data json.RawMessage) {
		m, ok := socket.Decode[models.ChannelMessage](models.EventChannelMessageNew, data)
		if !ok {
			return
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		if m.ChannelID == g.state.ChannelID {
			g.state.Messages, _ = appendChannelMessage(g.state.Messages, m)
		}
	})
	onDeleted := sub.OnEvent(models.EventChannelMessageDeleted, func(data json.RawMessage) {
		ev, ok := socket.Decode[models.ChannelMessageDeleted](models.EventChannelMessageDeleted, data)
		if !ok {
			return
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		if ev.ChannelID == "" || ev.ChannelID == g.state.ChannelID {
			g.state.Messages, _ = removeChannelMessage(g.state.Messages, ev.MessageID)
		}
	})
	return func() {
		onNew()
		onDeleted()
	}
}
