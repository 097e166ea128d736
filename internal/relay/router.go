package relay

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/chatrelay/internal/bus"
	"github.com/matheus3301/chatrelay/internal/protocol"
	"github.com/matheus3301/chatrelay/internal/store"
	"go.uber.org/zap"
)

// MessageStore persists messages and their delivery status.
type MessageStore interface {
	CreateMessage(chatID, senderID, content, messageType string) (*store.Message, error)
	// SetMessageStatus returns nil, nil when the message does not exist.
	SetMessageStatus(messageID, status string) (*store.Message, error)
}

// ChatDirectory resolves chats and their participants.
type ChatDirectory interface {
	// GetChat returns nil, nil when the chat does not exist.
	GetChat(chatID string) (*store.Chat, error)
	SetLastMessage(chatID, messageID string) error
}

// Options tunes router behavior.
type Options struct {
	// BroadcastOffline announces offline transitions to connected clients.
	// Online transitions are always announced.
	BroadcastOffline bool
}

// Router interprets inbound frames for one connection at a time. Callers
// must hand frames of a single connection to Handle sequentially.
type Router struct {
	registry *Registry
	presence *Presence
	fanout   *Fanout
	messages MessageStore
	chats    ChatDirectory
	bus      *bus.Bus
	logger   *zap.Logger
	opts     Options
}

// NewRouter wires a router over its collaborators.
func NewRouter(registry *Registry, presence *Presence, fanout *Fanout, messages MessageStore, chats ChatDirectory, b *bus.Bus, logger *zap.Logger, opts Options) *Router {
	return &Router{
		registry: registry,
		presence: presence,
		fanout:   fanout,
		messages: messages,
		chats:    chats,
		bus:      b,
		logger:   logger,
		opts:     opts,
	}
}

// Handle decodes and dispatches one inbound frame. Any failure is reported
// to c as an error envelope and never closes the connection.
func (r *Router) Handle(c Conn, frame []byte) {
	req, err := protocol.Decode(frame)
	if err == nil {
		err = r.dispatch(c, req)
	}
	if err != nil {
		r.fail(c, err)
	}
}

func (r *Router) dispatch(c Conn, req protocol.Request) error {
	switch req := req.(type) {
	case *protocol.Auth:
		return r.auth(c, req)
	case *protocol.SendMessage:
		return r.sendMessage(req)
	case *protocol.Typing:
		return r.typing(req)
	case *protocol.MessageRead:
		return r.messageRead(req)
	default:
		return &protocol.ProtocolError{Reason: "Unknown message type", Type: req.Type()}
	}
}

func (r *Router) auth(c Conn, req *protocol.Auth) error {
	if displaced := r.registry.Register(req.UserID, c); displaced != "" {
		r.logger.Info("connection re-authenticated", zap.String("conn_id", c.ID()), zap.String("from", displaced), zap.String("to", req.UserID))
		r.markOffline(displaced)
	}
	if err := r.presence.SetOnline(req.UserID); err != nil {
		return err
	}
	r.reply(c, protocol.TypeAuthSuccess, protocol.AuthSuccess{UserID: req.UserID})
	n := r.presence.Announce(req.UserID, store.UserOnline)
	r.syncRoster(c, req.UserID)
	r.logger.Info("user authenticated", zap.String("user_id", req.UserID), zap.String("conn_id", c.ID()), zap.Int("announced", n))
	return nil
}

// syncRoster tells a freshly authenticated connection who else is online,
// since it was not registered when those users announced themselves.
func (r *Router) syncRoster(c Conn, self string) {
	for _, userID := range r.registry.Users() {
		if userID == self {
			continue
		}
		r.reply(c, protocol.TypeUserStatus, protocol.UserStatus{UserID: userID, Status: store.UserOnline})
	}
}

func (r *Router) sendMessage(req *protocol.SendMessage) error {
	msg, err := r.messages.CreateMessage(req.ChatID, req.SenderID, req.Content, req.MessageType)
	if err != nil {
		return &CollaboratorError{Op: "create message", Err: err}
	}
	if err := r.chats.SetLastMessage(req.ChatID, msg.ID); err != nil {
		return &CollaboratorError{Op: "update last message", Err: err}
	}
	chat, err := r.chat(req.ChatID)
	if err != nil {
		return err
	}

	frame, err := protocol.Encode(protocol.TypeNewMessage, MessagePayload(msg))
	if err != nil {
		return err
	}
	n := r.fanout.Deliver(chat.Participants, frame)
	r.bus.Emit(bus.KindMessageCreated, msg)
	r.logger.Debug("message delivered",
		zap.String("message_id", msg.ID),
		zap.String("chat_id", msg.ChatID),
		zap.Int("participants", len(chat.Participants)),
		zap.Int("delivered", n),
	)
	return nil
}

func (r *Router) typing(req *protocol.Typing) error {
	chat, err := r.chat(req.ChatID)
	if err != nil {
		return err
	}
	targets := slices.DeleteFunc(slices.Clone(chat.Participants), func(id string) bool { return id == req.UserID })
	if len(targets) == 0 {
		return nil
	}
	frame, err := protocol.Encode(protocol.TypeUserTyping, protocol.UserTyping{
		ChatID:   req.ChatID,
		UserID:   req.UserID,
		IsTyping: req.IsTyping,
	})
	if err != nil {
		return err
	}
	r.fanout.Deliver(targets, frame)
	return nil
}

func (r *Router) messageRead(req *protocol.MessageRead) error {
	msg, err := r.messages.SetMessageStatus(req.MessageID, store.MessageRead)
	if err != nil {
		return &CollaboratorError{Op: "mark message read", Err: err}
	}
	if msg == nil {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, req.MessageID)
	}
	frame, err := protocol.Encode(protocol.TypeMessageStatusUpdated, protocol.MessageStatusUpdated{
		MessageID: msg.ID,
		Status:    msg.Status,
	})
	if err != nil {
		return err
	}
	r.fanout.Deliver([]string{msg.SenderID}, frame)
	r.bus.Emit(bus.KindMessageRead, msg)
	return nil
}

// Disconnect releases whatever registration c holds. A connection that was
// never authenticated, or was superseded by a newer one, changes nothing.
func (r *Router) Disconnect(c Conn) {
	userID, ok := r.registry.Unregister(c)
	if !ok {
		r.logger.Debug("connection closed without registration", zap.String("conn_id", c.ID()))
		return
	}
	r.markOffline(userID)
	r.logger.Info("user disconnected", zap.String("user_id", userID), zap.String("conn_id", c.ID()))
}

func (r *Router) markOffline(userID string) {
	if err := r.presence.SetOffline(userID); err != nil {
		r.logger.Error("mark offline failed", zap.String("user_id", userID), zap.Error(err))
	}
	if r.opts.BroadcastOffline {
		r.presence.Announce(userID, store.UserOffline)
	}
}

func (r *Router) chat(chatID string) (*store.Chat, error) {
	chat, err := r.chats.GetChat(chatID)
	if err != nil {
		return nil, &CollaboratorError{Op: "get chat", Err: err}
	}
	if chat == nil {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	return chat, nil
}

func (r *Router) reply(c Conn, typ string, payload any) {
	frame, err := protocol.Encode(typ, payload)
	if err != nil {
		r.logger.Error("encode reply", zap.String("type", typ), zap.Error(err))
		return
	}
	if err := c.Send(frame); err != nil {
		r.logger.Debug("reply dropped", zap.String("conn_id", c.ID()), zap.String("type", typ), zap.Error(err))
	}
}

func (r *Router) fail(c Conn, err error) {
	fields := []zap.Field{zap.String("conn_id", c.ID()), zap.Error(err)}
	if userID, ok := r.registry.UserOf(c); ok {
		fields = append(fields, zap.String("user_id", userID))
	}
	var (
		pe *protocol.ProtocolError
		ve *protocol.ValidationError
	)
	switch {
	case errors.As(err, &pe), errors.As(err, &ve), errors.Is(err, ErrChatNotFound), errors.Is(err, ErrMessageNotFound):
		r.logger.Warn("rejected frame", fields...)
	default:
		r.logger.Error("frame failed", fields...)
	}
	if sendErr := c.Send(protocol.EncodeError(err.Error())); sendErr != nil {
		r.logger.Debug("error reply dropped", zap.String("conn_id", c.ID()), zap.Error(sendErr))
	}
}

// MessagePayload converts a persisted message into its new_message form.
func MessagePayload(m *store.Message) protocol.NewMessage {
	return protocol.NewMessage{
		MessageID:   m.ID,
		ChatID:      m.ChatID,
		Sender:      protocol.Sender{ID: m.SenderID, Username: m.SenderName},
		Content:     m.Content,
		MessageType: m.MessageType,
		Status:      m.Status,
		CreatedAt:   time.UnixMilli(m.CreatedAt).UTC(),
	}
}
