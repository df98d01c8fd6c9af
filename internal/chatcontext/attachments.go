package chatcontext

import "galaxychat/internal/model"

// Reconcile attaches the files declared for the newest turn to the last
// message when it was written by the user. Earlier messages keep whatever
// attachments they already carry. The input slice is not modified.
func Reconcile(messages []model.Message, declared []model.Attachment) []model.Message {
	out := cloneAll(messages)
	if len(declared) == 0 || len(out) == 0 {
		return out
	}
	last := &out[len(out)-1]
	if last.Role != model.RoleUser {
		return out
	}
	last.Attachments = append([]model.Attachment(nil), declared...)
	return out
}
