package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"galaxychat/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Chat{}, &model.Message{}))
	return db
}

func msg(id string, role model.Role, content string) model.Message {
	return model.Message{MessageID: id, Role: role, Content: content, Timestamp: time.Now().UTC()}
}

func TestChatRepositoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))

	chat := &model.Chat{ID: "c1", UserID: 7, Title: "hello", ModelID: "gpt-4o", Messages: []model.Message{
		msg("m1", model.RoleUser, "hi"),
		msg("m2", model.RoleAssistant, "hello"),
	}}
	require.NoError(t, repo.Create(ctx, chat))

	got, err := repo.GetByIDAndUserID(ctx, "c1", 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "m1", got.Messages[0].MessageID)
	assert.Equal(t, "m2", got.Messages[1].MessageID)

	other, err := repo.GetByIDAndUserID(ctx, "c1", 8)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestChatRepositoryAppendMessage(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))
	require.NoError(t, repo.Create(ctx, &model.Chat{ID: "c1", UserID: 1, Title: "t", ModelID: "a",
		Messages: []model.Message{msg("m1", model.RoleUser, "one")}}))

	m := msg("m2", model.RoleAssistant, "two")
	m.Attachments = []model.Attachment{{URL: "/uploads/x.png", Name: "x.png", Type: "image/png"}}
	found, err := repo.AppendMessage(ctx, "c1", 1, &m, "b")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, m.Position)

	found, err = repo.AppendMessage(ctx, "c1", 2, &model.Message{MessageID: "x"}, "")
	require.NoError(t, err)
	assert.False(t, found)

	got, err := repo.GetByIDAndUserID(ctx, "c1", 1)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "b", got.ModelID)
	assert.Equal(t, "two", got.Messages[1].Content)
	require.Len(t, got.Messages[1].Attachments, 1)
	assert.Equal(t, "image/png", got.Messages[1].Attachments[0].Type)
}

func TestChatRepositoryFindRecent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewChatRepository(db)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, repo.Create(ctx, &model.Chat{ID: id, UserID: 1, Title: id, ModelID: "m",
			Messages: []model.Message{msg(id+"-1", model.RoleUser, id)}}))
		require.NoError(t, db.Model(&model.Chat{}).Where("id = ?", id).
			UpdateColumn("updated_at", base.Add(time.Duration(i)*time.Hour)).Error)
	}
	require.NoError(t, db.Model(&model.Chat{}).Where("id = ?", "c").UpdateColumn("is_archived", true).Error)
	require.NoError(t, repo.Create(ctx, &model.Chat{ID: "z", UserID: 2, Title: "z", ModelID: "m"}))

	chats, err := repo.FindRecent(ctx, 1, "d", 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ID)
		assert.Len(t, c.Messages, 1)
	}
	assert.Equal(t, []string{"b", "a"}, ids)

	chats, err = repo.FindRecent(ctx, 1, "", 1)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "d", chats[0].ID)
}

func TestChatRepositoryUpdateReplaceDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))
	require.NoError(t, repo.Create(ctx, &model.Chat{ID: "c1", UserID: 1, Title: "t", ModelID: "a",
		Messages: []model.Message{msg("m1", model.RoleUser, "one"), msg("m2", model.RoleAssistant, "two")}}))

	found, err := repo.Update(ctx, "c1", 1, map[string]interface{}{"title": "renamed", "is_archived": true})
	require.NoError(t, err)
	assert.True(t, found)
	found, err = repo.Update(ctx, "c1", 9, map[string]interface{}{"title": "nope"})
	require.NoError(t, err)
	assert.False(t, found)

	found, err = repo.ReplaceMessages(ctx, "c1", 1, []model.Message{msg("n1", model.RoleUser, "fresh")})
	require.NoError(t, err)
	assert.True(t, found)

	got, err := repo.GetByIDAndUserID(ctx, "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.True(t, got.IsArchived)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "n1", got.Messages[0].MessageID)

	found, err = repo.DeleteByIDAndUserID(ctx, "c1", 9)
	require.NoError(t, err)
	assert.False(t, found)
	found, err = repo.DeleteByIDAndUserID(ctx, "c1", 1)
	require.NoError(t, err)
	assert.True(t, found)

	got, err = repo.GetByIDAndUserID(ctx, "c1", 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserRepositoryUsageAndPreferences(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	user := &model.User{Username: "ada", Email: "ada@example.com", PasswordHash: "x"}
	require.NoError(t, repo.Create(ctx, user))

	require.NoError(t, repo.AddUsage(ctx, user.ID, 1, 2, 30))
	require.NoError(t, repo.AddUsage(ctx, user.ID, -5, 1, 0))
	require.NoError(t, repo.UpdatePreferences(ctx, user.ID, model.UserPreferences{
		DefaultModel: "claude-3-5-sonnet", Theme: "dark", Language: "de",
	}))

	got, err := repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0, got.Usage.TotalChats)
	assert.Equal(t, 3, got.Usage.TotalMessages)
	assert.Equal(t, 30, got.Usage.TotalTokensUsed)
	assert.Equal(t, "dark", got.Preferences.Theme)
	assert.Equal(t, "claude-3-5-sonnet", got.Preferences.DefaultModel)

	missing, err := repo.GetByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
