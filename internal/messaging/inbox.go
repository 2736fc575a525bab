package messaging

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/anonto42/shelfstream/internal/models"
	"github.com/anonto42/shelfstream/internal/reconcile"
	"github.com/anonto42/shelfstream/internal/socket"
)

// DefaultTypingTTL is how long a typing indicator lasts without a refresh
const DefaultTypingTTL = 5 * time.Second

// ErrNoConversation is returned by Send when no conversation is open
var ErrNoConversation = errors.New("no conversation open")

// InboxAPI is the part of the REST client the inbox uses
type InboxAPI interface {
	Conversations(ctx context.Context) ([]models.Conversation, error)
	ConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	SendMessage(ctx context.Context, req models.SendMessageRequest) (models.Message, error)
	MarkMessageRead(ctx context.Context, id string) error
	DeleteMessage(ctx context.Context, id string) error
}

// Channel is the socket surface the inbox listens on. The open
// conversation's typing room is joined through it.
type Channel interface {
	reconcile.Subscriber
	JoinRoom(room string)
	LeaveRoom(room string)
}

// Inbox holds the conversation list and the open conversation
type Inbox struct {
	api      InboxAPI
	viewerID string
	now      func() time.Time
	ttl      time.Duration

	mu            sync.Mutex
	conversations []models.Conversation
	openID        string
	messages      []models.Message
	typing        map[string]map[string]time.Time
	notifications int
	channel       Channel
}

// NewInbox creates an inbox for viewerID
func NewInbox(api InboxAPI, viewerID string) *Inbox {
	return &Inbox{
		api:      api,
		viewerID: viewerID,
		now:      time.Now,
		ttl:      DefaultTypingTTL,
		typing:   make(map[string]map[string]time.Time),
	}
}

// Load fetches the conversation list
func (in *Inbox) Load(ctx context.Context) ([]models.Conversation, error) {
	convs, err := in.api.Conversations(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load conversations")
	}
	sorted := SortConversations(convs)
	in.mu.Lock()
	in.conversations = sorted
	in.mu.Unlock()
	return sorted, nil
}

// Conversations returns the current list, newest first
func (in *Inbox) Conversations() []models.Conversation {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.conversations
}

// Open makes conversationID the open conversation and loads its messages.
// The typing room of the previous conversation is left for the new one.
func (in *Inbox) Open(ctx context.Context, conversationID string) ([]models.Message, error) {
	in.mu.Lock()
	prev := in.openID
	in.openID = conversationID
	in.messages = nil
	ch := in.channel
	in.mu.Unlock()

	if ch != nil && prev != conversationID {
		if prev != "" {
			ch.LeaveRoom(models.ConversationRoom(prev))
		}
		ch.JoinRoom(models.ConversationRoom(conversationID))
	}

	msgs, err := in.api.ConversationMessages(ctx, conversationID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load conversation %s", conversationID)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.openID != conversationID {
		// another conversation was opened meanwhile
		return msgs, nil
	}
	// keep anything the socket delivered while loading
	for _, m := range in.messages {
		msgs, _ = AppendMessage(msgs, m)
	}
	in.messages = msgs
	for i := range in.conversations {
		if in.conversations[i].ID == conversationID && in.conversations[i].UnreadCount != 0 {
			convs := append([]models.Conversation(nil), in.conversations...)
			convs[i].UnreadCount = 0
			in.conversations = convs
			break
		}
	}
	return msgs, nil
}

// OpenID returns the open conversation, empty when none
func (in *Inbox) OpenID() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.openID
}

// Messages returns the messages of the open conversation
func (in *Inbox) Messages() []models.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.messages
}

// Send posts content to the open conversation. Local state only changes after
// the server accepted the message.
func (in *Inbox) Send(ctx context.Context, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, errors.New("message is empty")
	}
	convID := in.OpenID()
	if convID == "" {
		return models.Message{}, ErrNoConversation
	}

	m, err := in.api.SendMessage(ctx, models.SendMessageRequest{ConversationID: convID, Content: content})
	if err != nil {
		return models.Message{}, errors.Wrap(err, "failed to send message")
	}
	in.receive(m)
	return m, nil
}

// MarkRead marks a message read on the server, then locally
func (in *Inbox) MarkRead(ctx context.Context, messageID string) error {
	if err := in.api.MarkMessageRead(ctx, messageID); err != nil {
		return errors.Wrap(err, "failed to mark message read")
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	for i, m := range in.messages {
		if m.ID == messageID && !m.ReadStatus {
			msgs := append([]models.Message(nil), in.messages...)
			msgs[i].ReadStatus = true
			in.messages = msgs
			break
		}
	}
	return nil
}

// Delete removes one of the viewer's messages
func (in *Inbox) Delete(ctx context.Context, messageID string) error {
	if err := in.api.DeleteMessage(ctx, messageID); err != nil {
		return errors.Wrap(err, "failed to delete message")
	}
	in.remove(in.OpenID(), messageID)
	return nil
}

// Typing returns who is typing in conversationID, sorted by user id
func (in *Inbox) Typing(conversationID string) []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	now := in.now()
	var out []string
	for user, until := range in.typing[conversationID] {
		if now.Before(until) {
			out = append(out, user)
		} else {
			delete(in.typing[conversationID], user)
		}
	}
	sort.Strings(out)
	return out
}

// UnreadNotifications counts notification:new events since the last reset
func (in *Inbox) UnreadNotifications() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.notifications
}

// ResetNotifications clears the unread notification count
func (in *Inbox) ResetNotifications() {
	in.mu.Lock()
	in.notifications = 0
	in.mu.Unlock()
}

func (in *Inbox) receive(m models.Message) {
	in.mu.Lock()
	defer in.mu.Unlock()
	isOpen := m.ConversationID == in.openID
	if isOpen {
		in.messages, _ = AppendMessage(in.messages, m)
	}
	unread := !isOpen && m.SenderID != in.viewerID
	in.conversations = TouchConversation(in.conversations, m, unread)
	if typers := in.typing[m.ConversationID]; typers != nil {
		delete(typers, m.SenderID)
	}
}

// remove drops a message from the open conversation when it belongs there,
// and from whichever conversation shows it as the last message
func (in *Inbox) remove(conversationID, messageID string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if conversationID == "" || conversationID == in.openID {
		in.messages, _ = RemoveMessage(in.messages, messageID)
	}
	for i, c := range in.conversations {
		if c.LastMessage == nil || c.LastMessage.ID != messageID {
			continue
		}
		convs := append([]models.Conversation(nil), in.conversations...)
		convs[i].LastMessage = nil
		if c.ID == in.openID && len(in.messages) > 0 {
			last := in.messages[len(in.messages)-1]
			convs[i].LastMessage = &last
		}
		in.conversations = convs
		return
	}
}

func (in *Inbox) setTyping(ev models.Typing) {
	if ev.UserID == in.viewerID {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	typers := in.typing[ev.ConversationID]
	if !ev.IsTyping {
		delete(typers, ev.UserID)
		return
	}
	if typers == nil {
		typers = make(map[string]time.Time)
		in.typing[ev.ConversationID] = typers
	}
	typers[ev.UserID] = in.now().Add(in.ttl)
}

// Bind subscribes the inbox to message, typing and notification events and
// joins the typing room of the open conversation. Disposing leaves it.
func (in *Inbox) Bind(ch Channel) (dispose func()) {
	in.mu.Lock()
	in.channel = ch
	open := in.openID
	in.mu.Unlock()
	if open != "" {
		ch.JoinRoom(models.ConversationRoom(open))
	}

	disposers := []func(){
		ch.OnEvent(models.EventMessageNew, func(data json.RawMessage) {
			if m, ok := socket.Decode[models.Message](models.EventMessageNew, data); ok {
				in.receive(m)
			}
		}),
		ch.OnEvent(models.EventMessageDeleted, func(data json.RawMessage) {
			if ev, ok := socket.Decode[models.MessageDeleted](models.EventMessageDeleted, data); ok {
				in.remove(ev.ConversationID, ev.MessageID)
			}
		}),
		ch.OnEvent(models.EventUserTyping, func(data json.RawMessage) {
			if ev, ok := socket.Decode[models.Typing](models.EventUserTyping, data); ok {
				in.setTyping(ev)
			}
		}),
		ch.OnEvent(models.EventNotification, func(data json.RawMessage) {
			if n, ok := socket.Decode[models.Notification](models.EventNotification, data); ok {
				in.mu.Lock()
				in.notifications++
				in.mu.Unlock()
				jww.DEBUG.Printf("notification %s: %s", n.Type, n.Message)
			}
		}),
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, d := range disposers {
				d()
			}
			in.mu.Lock()
			open := in.openID
			if in.channel == ch {
				in.channel = nil
			}
			in.mu.Unlock()
			if open != "" {
				ch.LeaveRoom(models.ConversationRoom(open))
			}
		})
	}
}

// Emitter sends an event over the socket
type Emitter interface {
	Emit(event string, payload any) error
}

// SendTyping tells the peer of the open conversation whether the viewer is
// typing
func (in *Inbox) SendTyping(em Emitter, isTyping bool) error {
	convID := in.OpenID()
	if convID == "" {
		return ErrNoConversation
	}
	return em.Emit(models.EventUserTyping, models.Typing{
		ConversationID: convID,
		UserID:         in.viewerID,
		IsTyping:       isTyping,
	})
}
