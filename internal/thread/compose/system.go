package compose

import (
	"strings"

	"gomodmail/internal/platform"
)

// SystemContent is either PlainText or Rich.
type SystemContent interface {
	// Render is the transcript form.
	Render() string
	Payload() platform.MessageSend
	isSystemContent()
}

type PlainText string

func (p PlainText) Render() string { return string(p) }

func (p PlainText) Payload() platform.MessageSend {
	return platform.MessageSend{Content: string(p)}
}

func (PlainText) isSystemContent() {}

// Rich is text with one embed attached.
type Rich struct {
	Content string
	Embed   platform.Embed
}

func (r Rich) Render() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{r.Content, r.Embed.Title, r.Embed.Description} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (r Rich) Payload() platform.MessageSend {
	embed := r.Embed
	return platform.MessageSend{Content: r.Content, Embed: &embed}
}

func (Rich) isSystemContent() {}
