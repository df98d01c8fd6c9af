package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"galaxychat/internal/catalog"
	"galaxychat/internal/model"
)

const DefaultSystemPrompt = `You are a helpful, harmless, and honest AI assistant. Give helpful, detailed, and polite answers to the user's questions.

Guidelines:
- Be conversational and helpful
- If you're unsure about something, admit it
- Provide detailed explanations when asked
- Use markdown formatting for better readability
- If the user shares images, analyze them carefully and describe what you see`

// AttachmentExpander resolves uploaded files into something a provider can
// read.
type AttachmentExpander interface {
	ImageURL(ctx context.Context, a model.Attachment) (string, error)
	PDFPageImages(ctx context.Context, a model.Attachment, maxPages int) ([]string, error)
	PDFText(ctx context.Context, a model.Attachment) (string, error)
}

type PromptOptions struct {
	SystemPrompt   string
	Now            time.Time
	SupportsImages bool
	PDFMaxPages    int
	Expander       AttachmentExpander
}

func SystemMessage(base string, now time.Time) string {
	if strings.TrimSpace(base) == "" {
		base = DefaultSystemPrompt
	}
	if now.IsZero() {
		now = time.Now()
	}
	return base + "\n\nCurrent date: " + now.Format("2006-01-02")
}

// BuildPrompt prepends the system message to messages. Only the last message
// has its attachments expanded; earlier turns go out as plain text.
func BuildPrompt(ctx context.Context, messages []model.Message, opts PromptOptions) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages)+1)
	out = append(out, ChatMessage{Role: string(model.RoleSystem), Content: SystemMessage(opts.SystemPrompt, opts.Now)})

	for i, msg := range messages {
		role := msg.Role
		if !role.Valid() {
			role = model.RoleUser
		}
		cm := ChatMessage{Role: string(role), Content: msg.Content}
		if i == len(messages)-1 && len(msg.Attachments) > 0 {
			expandAttachments(ctx, &cm, msg.Attachments, opts)
		}
		out = append(out, cm)
	}
	return out
}

func expandAttachments(ctx context.Context, cm *ChatMessage, attachments []model.Attachment, opts PromptOptions) {
	var notes []string
	for _, a := range attachments {
		switch {
		case a.IsImage():
			if !opts.SupportsImages {
				notes = append(notes, fmt.Sprintf("[Attached image: %s]", a.Name))
				continue
			}
			url := a.URL
			if opts.Expander != nil {
				resolved, err := opts.Expander.ImageURL(ctx, a)
				if err != nil {
					log.WithField("attachment", a.URL).Warnf("resolve image failed, sending url as is: %v", err)
				} else {
					url = resolved
				}
			}
			cm.ImageURLs = append(cm.ImageURLs, url)
		case a.IsPDF():
			if opts.Expander == nil {
				notes = append(notes, fmt.Sprintf("[Attached PDF: %s]", a.Name))
				continue
			}
			if opts.SupportsImages {
				pages, err := opts.Expander.PDFPageImages(ctx, a, opts.PDFMaxPages)
				if err == nil && len(pages) > 0 {
					cm.ImageURLs = append(cm.ImageURLs, pages...)
					continue
				}
				if err != nil {
					log.WithField("attachment", a.URL).Debugf("pdf page images unavailable, falling back to text: %v", err)
				}
			}
			text, err := opts.Expander.PDFText(ctx, a)
			if err != nil {
				log.WithField("attachment", a.URL).Warnf("extract pdf text failed: %v", err)
				notes = append(notes, fmt.Sprintf("[Attached PDF: %s (content unavailable)]", a.Name))
				continue
			}
			notes = append(notes, fmt.Sprintf("[Attached PDF: %s]\n%s", a.Name, text))
		default:
			notes = append(notes, fmt.Sprintf("[Attached file: %s]", a.Name))
		}
	}
	if len(notes) > 0 {
		cm.Content = strings.TrimSpace(cm.Content + "\n\n" + strings.Join(notes, "\n\n"))
	}
}

// EstimateTokens assumes roughly four characters per token.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

func EstimatePromptTokens(messages []ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

func FitsContextWindow(m catalog.Model, tokens int) bool {
	return m.ContextWindow <= 0 || tokens <= m.ContextWindow
}
