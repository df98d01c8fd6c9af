// Package chatcontext builds the bounded message list sent to a completion
// provider for one chat turn: the newest turns of the active chat, a stride
// sample of its older turns and, for signed-in users, a weighted sample of
// their other recent chats.
package chatcontext

import (
	"context"
	"slices"

	"galaxychat/internal/model"
)

const (
	DefaultMaxMessages      = 65
	DefaultMaxOlderMessages = 30
	DefaultRecentChatLimit  = 10

	// recentReserve is the number of trailing messages of the active chat that
	// are always kept verbatim at the end of the context.
	recentReserve = 4
)

// ChatFinder returns a user's most recently updated non-archived chats,
// newest first, with their messages in stored order.
type ChatFinder interface {
	FindRecentChats(ctx context.Context, userID uint, excludeChatID string, limit int) ([]model.Chat, error)
}

type Options struct {
	MaxMessages      int
	MaxOlderMessages int
	RecentChatLimit  int
	Metrics          *Metrics
}

type Assembler struct {
	finder  ChatFinder
	opts    Options
	metrics *Metrics
}

// Request describes one turn. UserID 0 means an anonymous session and
// ChatID "" means a chat that has not been persisted yet.
type Request struct {
	Messages    []model.Message
	UserID      uint
	ChatID      string
	MaxMessages int
}

func NewAssembler(finder ChatFinder, opts Options) *Assembler {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.MaxOlderMessages <= 0 {
		opts.MaxOlderMessages = DefaultMaxOlderMessages
	}
	if opts.RecentChatLimit <= 0 {
		opts.RecentChatLimit = DefaultRecentChatLimit
	}
	return &Assembler{
		finder:  finder,
		opts:    opts,
		metrics: opts.Metrics,
	}
}

// Assemble never fails. The result is at most MaxMessages long and ends with
// the last four messages of req.Messages in their original order; everything
// before them is ascending by timestamp.
func (a *Assembler) Assemble(ctx context.Context, req Request) []model.Message {
	maxMessages := req.MaxMessages
	if maxMessages <= 0 {
		maxMessages = a.opts.MaxMessages
	}

	current := req.Messages
	recentCount := min(recentReserve, len(current))
	recent := cloneAll(current[len(current)-recentCount:])
	olderCurrent := current[:len(current)-recentCount]

	available := maxMessages - recentReserve
	if available <= 0 {
		if len(recent) > maxMessages {
			recent = recent[len(recent)-maxMessages:]
		}
		a.metrics.observeAssembled(len(recent), 0)
		return recent
	}

	slots := available
	if req.UserID != 0 {
		slots = available * 6 / 10
	}
	prefix := strideSample(olderCurrent, slots)

	var fromOlderChats []model.Message
	if req.UserID != 0 {
		if remaining := available - len(prefix); remaining > 0 {
			fromOlderChats = a.OlderChatContext(ctx, req.UserID, req.ChatID, remaining)
			prefix = append(prefix, fromOlderChats...)
		}
	}

	sortChronological(prefix)
	if len(prefix) > available {
		prefix = prefix[len(prefix)-available:]
	}

	out := make([]model.Message, 0, len(prefix)+len(recent))
	out = append(out, prefix...)
	out = append(out, recent...)
	a.metrics.observeAssembled(len(out), len(fromOlderChats))
	return out
}

// strideSample keeps every step-th message so that the sample spans the whole
// slice while ending on its most recent part.
func strideSample(messages []model.Message, slots int) []model.Message {
	if slots <= 0 || len(messages) == 0 {
		return nil
	}
	if len(messages) <= slots {
		return cloneAll(messages)
	}

	step := max(1, len(messages)/slots)
	start := len(messages) - slots*step
	out := make([]model.Message, 0, slots)
	for i := start; i < len(messages); i += step {
		out = append(out, messages[i].Clone())
	}
	return out
}

// sortChronological orders by timestamp; a zero timestamp sorts first and
// ties keep their relative order.
func sortChronological(messages []model.Message) {
	slices.SortStableFunc(messages, func(x, y model.Message) int {
		return x.Timestamp.Compare(y.Timestamp)
	})
}

func cloneAll(messages []model.Message) []model.Message {
	out := make([]model.Message, len(messages))
	for i := range messages {
		out[i] = messages[i].Clone()
	}
	return out
}
