package devserver

import (
	"context"
	"fmt"
	"strings"
)

// Replier produces the assistant turn for a conversation.
type Replier interface {
	Reply(ctx context.Context, topic string, history []Message) (string, error)
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, topic string, history []Message) (string, error)

// Reply implements Replier.
func (f ReplierFunc) Reply(ctx context.Context, topic string, history []Message) (string, error) {
	return f(ctx, topic, history)
}

// CannedReply is what CannedReplier answers with.
const CannedReply = "This is a simulated response. When connected to a real backend, this will be an AI-generated answer based on homeowner documents."

// CannedReplier answers every message with CannedReply, naming the topic
// when it is not the default.
type CannedReplier struct{}

// Reply implements Replier.
func (CannedReplier) Reply(_ context.Context, topic string, _ []Message) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" || topic == "general" {
		return CannedReply, nil
	}
	return fmt.Sprintf("[%s] %s", topic, CannedReply), nil
}
