package chatcontext

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galaxychat/internal/model"
)

type fakeFinder struct {
	chats         []model.Chat
	err           error
	ignoreExclude bool
	// shared hands out f.chats itself, the way an in-process cache would.
	shared bool

	calls       int
	lastUserID  uint
	lastExclude string
	lastLimit   int
}

func (f *fakeFinder) FindRecentChats(_ context.Context, userID uint, excludeChatID string, limit int) ([]model.Chat, error) {
	f.calls++
	f.lastUserID = userID
	f.lastExclude = excludeChatID
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if f.shared {
		return f.chats, nil
	}
	var out []model.Chat
	for _, c := range f.chats {
		if c.ID == excludeChatID && !f.ignoreExclude {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func conversation(prefix string, n int, start time.Time) []model.Message {
	out := make([]model.Message, n)
	for i := range out {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		out[i] = model.Message{
			MessageID: fmt.Sprintf("%s-%02d", prefix, i),
			Role:      role,
			Content:   fmt.Sprintf("%s message %d", prefix, i),
			Timestamp: start.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func chat(id string, n int, start time.Time) model.Chat {
	return model.Chat{
		ID:        id,
		UserID:    1,
		Title:     "chat " + id,
		Messages:  conversation(id, n, start),
		UpdatedAt: start.Add(time.Duration(n) * time.Minute),
	}
}

// threeChats mirrors the usual shape of a returning user: one long recent
// chat, one medium and one short older chat.
func threeChats() []model.Chat {
	return []model.Chat{
		chat("a", 50, base.Add(-2*time.Hour)),
		chat("b", 20, base.Add(-4*time.Hour)),
		chat("c", 5, base.Add(-6*time.Hour)),
	}
}

func ids(messages []model.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.MessageID
	}
	return out
}

func assertChronological(t *testing.T, messages []model.Message) {
	t.Helper()
	for i := 1; i < len(messages); i++ {
		assert.False(t, messages[i].Timestamp.Before(messages[i-1].Timestamp),
			"message %s at %d is older than %s", messages[i].MessageID, i, messages[i-1].MessageID)
	}
}

func countWithPrefix(messages []model.Message, prefix string) int {
	n := 0
	for _, m := range messages {
		if strings.HasPrefix(m.MessageID, prefix) {
			n++
		}
	}
	return n
}

func TestAssembleAnonymousStrideSample(t *testing.T) {
	current := conversation("cur", 10, base)
	a := NewAssembler(nil, Options{})

	out := a.Assemble(context.Background(), Request{Messages: current, MaxMessages: 8})

	require.Len(t, out, 8)
	assert.Equal(t, ids(current[6:]), ids(out[4:]))
	assert.Equal(t, []string{"cur-02", "cur-03", "cur-04", "cur-05"}, ids(out[:4]))
	assertChronological(t, out[:4])
}

func TestAssembleKeepsLastFourVerbatim(t *testing.T) {
	current := conversation("cur", 12, base)
	// the tail is deliberately out of timestamp order and partly unstamped
	current[8].Timestamp = base.Add(time.Hour)
	current[9].Timestamp = time.Time{}
	current[11].Timestamp = base.Add(-time.Hour)

	finder := &fakeFinder{chats: threeChats()}
	a := NewAssembler(finder, Options{})

	for _, maxMessages := range []int{4, 5, 8, 20, 65} {
		for _, userID := range []uint{0, 1} {
			out := a.Assemble(context.Background(), Request{
				Messages:    current,
				UserID:      userID,
				ChatID:      "cur",
				MaxMessages: maxMessages,
			})
			require.GreaterOrEqual(t, len(out), 4)
			assert.Equal(t, ids(current[8:]), ids(out[len(out)-4:]), "max=%d user=%d", maxMessages, userID)
		}
	}
}

func TestAssembleBudgetBound(t *testing.T) {
	a := NewAssembler(&fakeFinder{chats: threeChats()}, Options{})

	for _, size := range []int{0, 1, 3, 4, 5, 9, 30, 80} {
		for _, maxMessages := range []int{1, 2, 4, 5, 6, 7, 10, 17, 33, 65} {
			for _, userID := range []uint{0, 1} {
				out := a.Assemble(context.Background(), Request{
					Messages:    conversation("cur", size, base),
					UserID:      userID,
					MaxMessages: maxMessages,
				})
				assert.LessOrEqual(t, len(out), maxMessages, "size=%d max=%d user=%d", size, maxMessages, userID)
			}
		}
	}
}

func TestAssembleDefaultBudget(t *testing.T) {
	a := NewAssembler(&fakeFinder{chats: threeChats()}, Options{})

	out := a.Assemble(context.Background(), Request{
		Messages: conversation("cur", 200, base),
		UserID:   1,
	})

	// 36 from the active chat, 12 + 8 + 4 from older chats, the last 4;
	// floor rounding leaves one of the 65 slots unused
	assert.Len(t, out, 64)
}

func TestAssemblePrefixIsChronological(t *testing.T) {
	// older chats interleave in time with the active one
	chats := []model.Chat{
		chat("x", 40, base.Add(30*time.Second)),
		chat("y", 40, base.Add(-time.Hour)),
	}
	current := conversation("cur", 60, base)
	a := NewAssembler(&fakeFinder{chats: chats}, Options{})

	out := a.Assemble(context.Background(), Request{Messages: current, UserID: 7, ChatID: "cur", MaxMessages: 30})

	// 15 stride-sampled from the active chat, 7 + 3 from the older chats
	require.Len(t, out, 29)
	assertChronological(t, out[:len(out)-4])
	assert.Greater(t, countWithPrefix(out, "x-"), 0)
	assert.Greater(t, countWithPrefix(out, "cur-"), 4)
}

func TestAssembleAnonymousNeverReadsOtherChats(t *testing.T) {
	finder := &fakeFinder{chats: threeChats()}
	a := NewAssembler(finder, Options{})
	current := conversation("cur", 40, base)

	out := a.Assemble(context.Background(), Request{Messages: current, MaxMessages: 20})

	assert.Equal(t, 0, finder.calls)
	require.Len(t, out, 20)
	assert.Equal(t, 20, countWithPrefix(out, "cur-"))
}

func TestAssembleExcludesActiveChat(t *testing.T) {
	stored := chat("active", 30, base.Add(-time.Hour))
	finder := &fakeFinder{
		chats:         append([]model.Chat{stored}, threeChats()...),
		ignoreExclude: true,
	}
	a := NewAssembler(finder, Options{})
	current := conversation("cur", 12, base)

	out := a.Assemble(context.Background(), Request{Messages: current, UserID: 1, ChatID: "active", MaxMessages: 40})

	assert.Equal(t, "active", finder.lastExclude)
	assert.Equal(t, DefaultRecentChatLimit, finder.lastLimit)
	assert.Zero(t, countWithPrefix(out, "active-"))
	assert.Greater(t, countWithPrefix(out, "a-"), 0)
}

func TestOlderChatContextLeavesFinderResultUntouched(t *testing.T) {
	stored := append([]model.Chat{chat("active", 6, base.Add(-time.Hour))}, threeChats()...)
	finder := &fakeFinder{chats: stored, shared: true}
	var want []string
	for _, c := range stored {
		want = append(want, c.ID)
	}
	a := NewAssembler(finder, Options{})

	out := a.OlderChatContext(context.Background(), 1, "active", 10)
	assert.Zero(t, countWithPrefix(out, "active-"))

	require.Len(t, finder.chats, len(want))
	for i, c := range finder.chats {
		assert.Equal(t, want[i], c.ID)
	}
}

func TestAssembleSurvivesLookupFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	finder := &fakeFinder{err: errors.New("connection refused")}
	a := NewAssembler(finder, Options{Metrics: metrics})
	current := conversation("cur", 10, base)

	out := a.Assemble(context.Background(), Request{Messages: current, UserID: 1, ChatID: "cur", MaxMessages: 8})

	assert.Equal(t, 1, finder.calls)
	// 60% of the 4 free slots go to the active chat; the rest stays empty
	require.Len(t, out, 6)
	assert.Equal(t, ids(current[6:]), ids(out[2:]))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.retrievalFailure))
}

func TestAssembleShortConversation(t *testing.T) {
	a := NewAssembler(nil, Options{})
	current := conversation("cur", 3, base)

	out := a.Assemble(context.Background(), Request{Messages: current})

	assert.Equal(t, ids(current), ids(out))

	out = a.Assemble(context.Background(), Request{Messages: current, MaxMessages: 2})
	assert.Equal(t, ids(current[1:]), ids(out))

	assert.Empty(t, a.Assemble(context.Background(), Request{}))
}

func TestAssembleDoesNotAliasInput(t *testing.T) {
	current := conversation("cur", 6, base)
	current[5].Attachments = []model.Attachment{{URL: "/uploads/a.png", Name: "a.png", Type: "image/png"}}
	a := NewAssembler(nil, Options{})

	out := a.Assemble(context.Background(), Request{Messages: current})
	out[len(out)-1].Attachments[0].URL = "changed"
	out[0].Content = "changed"

	assert.Equal(t, "/uploads/a.png", current[5].Attachments[0].URL)
	assert.Equal(t, "cur message 0", current[0].Content)
}

func TestOlderChatAllocationFavoursRecentChats(t *testing.T) {
	chats := threeChats()
	assert.Equal(t, []int{15, 10, 5}, slotsPerChat(chats, 30))

	a := NewAssembler(&fakeFinder{chats: chats}, Options{})
	out := a.OlderChatContext(context.Background(), 1, "", 30)

	require.Len(t, out, 30)
	assert.Equal(t, 15, countWithPrefix(out, "a-"))
	assert.Equal(t, 10, countWithPrefix(out, "b-"))
	assert.Equal(t, 5, countWithPrefix(out, "c-"))
	assertChronological(t, out)
	// each chat contributes its tail
	assert.Equal(t, "a-49", out[len(out)-1].MessageID)
	assert.Contains(t, ids(out), "a-35")
	assert.NotContains(t, ids(out), "a-34")
}

func TestOlderChatAllocationMinimumOneSlot(t *testing.T) {
	chats := make([]model.Chat, 10)
	for i := range chats {
		chats[i] = chat(fmt.Sprintf("c%d", i), 8, base.Add(-time.Duration(i)*time.Hour))
	}

	slots := slotsPerChat(chats, 6)
	for i, s := range slots {
		assert.GreaterOrEqual(t, s, 1, "chat %d", i)
	}

	a := NewAssembler(&fakeFinder{chats: chats}, Options{})
	out := a.OlderChatContext(context.Background(), 1, "", 6)
	assert.Len(t, out, 6)
	assertChronological(t, out)
	// the clamp keeps the newest messages
	assert.Equal(t, "c0-07", out[len(out)-1].MessageID)
}

func TestOlderChatContextUnderBudgetReturnsEverything(t *testing.T) {
	chats := []model.Chat{
		chat("new", 3, base.Add(-time.Hour)),
		chat("old", 2, base.Add(-3*time.Hour)),
		{ID: "empty", Title: "nothing yet"},
	}
	a := NewAssembler(&fakeFinder{chats: chats}, Options{})

	out := a.OlderChatContext(context.Background(), 1, "", 30)

	assert.Equal(t, []string{"old-00", "old-01", "new-00", "new-01", "new-02"}, ids(out))
}

func TestOlderChatContextUnstampedMessagesSortFirst(t *testing.T) {
	chats := []model.Chat{chat("a", 4, base)}
	chats[0].Messages[2].Timestamp = time.Time{}
	a := NewAssembler(&fakeFinder{chats: chats}, Options{})

	out := a.OlderChatContext(context.Background(), 1, "", 10)

	require.Len(t, out, 4)
	assert.Equal(t, "a-02", out[0].MessageID)
}

func TestOlderChatContextRequiresUser(t *testing.T) {
	finder := &fakeFinder{chats: threeChats()}
	a := NewAssembler(finder, Options{})

	assert.Empty(t, a.OlderChatContext(context.Background(), 0, "", 30))
	assert.Equal(t, 0, finder.calls)
}

func TestStrideSample(t *testing.T) {
	msgs := conversation("m", 10, base)

	assert.Equal(t, []string{"m-01", "m-04", "m-07"}, ids(strideSample(msgs, 3)))
	assert.Equal(t, []string{"m-00", "m-02", "m-04", "m-06", "m-08"}, ids(strideSample(msgs, 5)))
	assert.Len(t, strideSample(msgs, 10), 10)
	assert.Empty(t, strideSample(msgs, 0))
}

func TestReconcile(t *testing.T) {
	declared := []model.Attachment{{URL: "https://cdn.test/a.pdf", Name: "a.pdf", Type: "application/pdf"}}
	messages := conversation("m", 3, base)

	out := Reconcile(messages, declared)
	assert.Equal(t, declared, out[2].Attachments)
	assert.Empty(t, messages[2].Attachments)
	assert.Empty(t, out[1].Attachments)

	assistantLast := conversation("m", 2, base)
	out = Reconcile(assistantLast, declared)
	assert.Empty(t, out[1].Attachments)

	assert.Empty(t, Reconcile(nil, declared))
}
