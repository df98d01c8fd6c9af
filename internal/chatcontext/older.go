package chatcontext

import (
	"context"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"

	"galaxychat/internal/model"
)

type candidate struct {
	message       model.Message
	chatID        string
	chatTitle     string
	chatUpdatedAt time.Time
}

// OlderChatContext samples up to maxOlder messages from the user's other
// recent chats, oldest first. More recently updated chats get a larger share.
// Lookup failures are logged and yield an empty result.
func (a *Assembler) OlderChatContext(ctx context.Context, userID uint, excludeChatID string, maxOlder int) []model.Message {
	if userID == 0 || a.finder == nil {
		return nil
	}
	if maxOlder <= 0 {
		maxOlder = a.opts.MaxOlderMessages
	}

	chats, err := a.finder.FindRecentChats(ctx, userID, excludeChatID, a.opts.RecentChatLimit)
	if err != nil {
		log.WithFields(log.Fields{
			"user_id":      userID,
			"exclude_chat": excludeChatID,
		}).Warnf("older chat lookup failed, continuing without cross-chat context: %v", err)
		a.metrics.retrievalFailed()
		return nil
	}
	chats = withoutChat(chats, excludeChatID, a.opts.RecentChatLimit)

	candidates := flatten(chats)
	if len(candidates) == 0 {
		return nil
	}
	slices.SortStableFunc(candidates, func(x, y candidate) int {
		if c := y.message.Timestamp.Compare(x.message.Timestamp); c != 0 {
			return c
		}
		return y.chatUpdatedAt.Compare(x.chatUpdatedAt)
	})

	picked := candidates
	if len(candidates) > maxOlder {
		picked = allocate(chats, maxOlder)
	}
	slices.SortStableFunc(picked, func(x, y candidate) int {
		return x.message.Timestamp.Compare(y.message.Timestamp)
	})
	if len(picked) > maxOlder {
		picked = picked[len(picked)-maxOlder:]
	}

	out := make([]model.Message, 0, len(picked))
	sources := make(map[string]int)
	for _, c := range picked {
		out = append(out, c.message)
		sources[c.chatTitle]++
	}
	log.WithFields(log.Fields{
		"user_id":    userID,
		"chats":      len(chats),
		"candidates": len(candidates),
		"selected":   len(out),
		"sources":    sources,
	}).Debug("older chat context sampled")
	return out
}

// withoutChat copies at most limit chats, skipping excludeChatID. The finder's
// slice is never modified.
func withoutChat(chats []model.Chat, excludeChatID string, limit int) []model.Chat {
	out := make([]model.Chat, 0, min(limit, len(chats)))
	for _, c := range chats {
		if len(out) == limit {
			break
		}
		if excludeChatID != "" && c.ID == excludeChatID {
			continue
		}
		out = append(out, c)
	}
	return out
}

func flatten(chats []model.Chat) []candidate {
	var out []candidate
	for _, chat := range chats {
		for _, msg := range chat.Messages {
			out = append(out, candidate{
				message:       msg.Clone(),
				chatID:        chat.ID,
				chatTitle:     chat.Title,
				chatUpdatedAt: chat.UpdatedAt,
			})
		}
	}
	return out
}

// allocate takes, for each chat, its slot count of messages from the end of
// the chat.
func allocate(chats []model.Chat, budget int) []candidate {
	var out []candidate
	for i, slots := range slotsPerChat(chats, budget) {
		chat := chats[i]
		for _, msg := range chat.Messages[len(chat.Messages)-slots:] {
			out = append(out, candidate{
				message:       msg.Clone(),
				chatID:        chat.ID,
				chatTitle:     chat.Title,
				chatUpdatedAt: chat.UpdatedAt,
			})
		}
	}
	return out
}

// slotsPerChat gives chat i (0 = most recent of n) a share of budget
// proportional to max(1, n-i): at least one slot, at most its own length.
func slotsPerChat(chats []model.Chat, budget int) []int {
	n := len(chats)
	totalWeight := n * (n + 1) / 2
	out := make([]int, n)
	for i, chat := range chats {
		weight := max(1, n-i)
		slots := max(1, budget*weight/totalWeight)
		out[i] = min(slots, len(chat.Messages))
	}
	return out
}
