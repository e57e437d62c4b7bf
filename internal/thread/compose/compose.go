// Package compose renders one relay event into the text seen by the remote user,
// the relay channel and the transcript.
package compose

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"gomodmail/internal/config"
	"gomodmail/internal/platform"
)

// EmbedPlaceholder stands in for a message that only carries embeds.
const EmbedPlaceholder = "<message contains embeds>"

const (
	outboundMark = "»"
	inboundMark  = "«"
)

// Composed is the rendered form of one relay event.
type Composed struct {
	DMText      string
	ChannelText string
	LogBody     string
	Embed       *platform.Embed

	// DMFiles and ChannelFiles are attachments to upload again on each side.
	DMFiles      []platform.Attachment
	ChannelFiles []platform.Attachment
}

type Composer struct {
	timestamps bool
	inlineMax  uint64
}

func NewComposer(cfg *config.Config) *Composer {
	return &Composer{
		timestamps: cfg.Relay.Timestamps,
		inlineMax:  cfg.Relay.InlineAttachmentMax,
	}
}

// Outbound renders an operator reply. The remote user receives every attachment as a file.
func (c *Composer) Outbound(speaker, text string, attachments []platform.Attachment, at time.Time) Composed {
	links := AttachmentLines(attachments)
	framed := frame(speaker, text)

	return Composed{
		DMText:       framed,
		ChannelText:  c.stamp(outboundMark, at) + joinLines(framed, links),
		LogBody:      joinLines(text, links),
		DMFiles:      attachments,
		ChannelFiles: c.inline(attachments),
	}
}

// Inbound renders a message from the remote user for the relay channel.
func (c *Composer) Inbound(speaker string, msg platform.Message, at time.Time) Composed {
	text := msg.Content
	if strings.TrimSpace(text) == "" && len(msg.Embeds) > 0 {
		text = EmbedPlaceholder
	}
	links := AttachmentLines(msg.Attachments)

	return Composed{
		ChannelText:  c.stamp(inboundMark, at) + joinLines(frame(speaker, text), links),
		LogBody:      joinLines(text, links),
		ChannelFiles: c.inline(msg.Attachments),
	}
}

// System renders a bot notice. System text is never framed or anonymized.
func (c *Composer) System(content SystemContent) Composed {
	payload := content.Payload()
	return Composed{
		DMText:      payload.Content,
		ChannelText: payload.Content,
		LogBody:     content.Render(),
		Embed:       payload.Embed,
	}
}

// CommandHelp renders a pre-built help payload sent on behalf of an operator.
// The transcript only records which help entry was sent.
func (c *Composer) CommandHelp(speaker, command string, payload platform.MessageSend, at time.Time) Composed {
	return Composed{
		DMText:      payload.Content,
		ChannelText: c.stamp(outboundMark, at) + joinLines(frame(speaker, ""), payload.Content),
		LogBody:     fmt.Sprintf("[Command Help: %s]", command),
		Embed:       payload.Embed,
	}
}

func (c *Composer) stamp(mark string, at time.Time) string {
	if !c.timestamps {
		return ""
	}
	return fmt.Sprintf("[%s] %s ", at.UTC().Format("15:04"), mark)
}

// inline keeps the attachments small enough to upload again.
func (c *Composer) inline(attachments []platform.Attachment) []platform.Attachment {
	var out []platform.Attachment
	for _, att := range attachments {
		if att.Size < c.inlineMax {
			out = append(out, att)
		}
	}
	return out
}

// AttachmentLine formats the transcript link for one attachment.
func AttachmentLine(att platform.Attachment) string {
	return fmt.Sprintf("**Attachment:** %s (%s)\n%s", att.Filename, humanize.IBytes(att.Size), att.URL)
}

func AttachmentLines(attachments []platform.Attachment) string {
	lines := make([]string, 0, len(attachments))
	for _, att := range attachments {
		lines = append(lines, AttachmentLine(att))
	}
	return strings.Join(lines, "\n\n")
}

func frame(speaker, text string) string {
	if text == "" {
		return fmt.Sprintf("**%s:**", speaker)
	}
	return fmt.Sprintf("**%s:** %s", speaker, text)
}

func joinLines(head, tail string) string {
	switch {
	case tail == "":
		return head
	case head == "":
		return tail
	default:
		return head + "\n\n" + tail
	}
}
