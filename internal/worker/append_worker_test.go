package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galaxychat/internal/model"
)

type recordingAppender struct {
	jobs []model.AppendJob
	err  error
}

func (r *recordingAppender) Apply(_ context.Context, job model.AppendJob) error {
	r.jobs = append(r.jobs, job)
	return r.err
}

func TestProcessDecodesAndApplies(t *testing.T) {
	appender := &recordingAppender{}
	w := NewAppendWorker(nil, appender, "chat.append")

	body, err := json.Marshal(model.AppendJob{
		ChatID:  "c1",
		UserID:  3,
		ModelID: "gpt-4o",
		Message: model.Message{MessageID: "m1", Role: model.RoleAssistant, Content: "hi"},
	})
	require.NoError(t, err)

	require.NoError(t, w.process(context.Background(), body))
	require.Len(t, appender.jobs, 1)
	assert.Equal(t, "c1", appender.jobs[0].ChatID)
	assert.Equal(t, "m1", appender.jobs[0].Message.MessageID)
}

func TestProcessFailures(t *testing.T) {
	appender := &recordingAppender{err: errors.New("chat not found")}
	w := NewAppendWorker(nil, appender, "chat.append")

	assert.ErrorIs(t, w.process(context.Background(), nil), errEmptyJob)
	assert.Error(t, w.process(context.Background(), []byte("{bad")))
	assert.Empty(t, appender.jobs)

	err := w.process(context.Background(), []byte(`{"chat_id":"c1","user_id":1,"message":{"role":"user","content":"x"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c1")
	assert.Len(t, appender.jobs, 1)
}

func TestCloseWithoutStart(t *testing.T) {
	w := NewAppendWorker(nil, &recordingAppender{}, "q")
	w.Close()
}
