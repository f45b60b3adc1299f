package session

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/cb3tech/moshcast-live/internal/domain"
)

// Chat is the low-stakes side channel scoped to the same session,
// independent of playback sync. The relay echoes every message to all
// participants including the sender.
type Chat struct {
	ch Channel

	mu        sync.Mutex
	onMessage func(msg domain.ChatMessage, own bool)
}

// NewChat attaches a chat client to the channel.
func NewChat(ch Channel) *Chat {
	c := &Chat{ch: ch}
	ch.On(domain.MsgTypeChatMessage, c.handleMessage)
	return c
}

// Send publishes one chat line to the session. Empty messages are
// dropped without a round trip.
func (c *Chat) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return c.ch.Emit(domain.MsgTypeChatSend, domain.ChatSendMessage{
		Type: domain.MsgTypeChatSend,
		Text: text,
	})
}

// OnMessage registers the delivery handler. own is true when the
// message originated from this connection.
func (c *Chat) OnMessage(f func(msg domain.ChatMessage, own bool)) {
	c.mu.Lock()
	c.onMessage = f
	c.mu.Unlock()
}

func (c *Chat) handleMessage(data []byte) {
	var msg domain.ChatMessageOut
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	c.mu.Lock()
	cb := c.onMessage
	c.mu.Unlock()
	if cb != nil {
		cb(msg.ChatMessage, msg.SenderID != "" && msg.SenderID == c.ch.ConnID())
	}
}
