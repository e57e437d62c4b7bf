package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"gomodmail/internal/config"
	"gomodmail/internal/logging"
)

// EventHandler receives the platform events the relay cares about.
type EventHandler interface {
	OnDirectMessage(ctx context.Context, msg Message)
	OnChannelMessage(ctx context.Context, msg Message, author Member)
	OnChannelMessageEdit(ctx context.Context, msg Message)
}

// Discord implements Gateway on top of a discordgo session.
type Discord struct {
	session    *discordgo.Session
	guildID    string
	categoryID string
	httpClient *http.Client
}

func NewDiscord(cfg *config.Config) (*Discord, error) {
	if cfg.Discord.Token == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is not set")
	}
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Discord{
		session:    session,
		guildID:    cfg.Discord.GuildID,
		categoryID: cfg.Discord.CategoryID,
		httpClient: &http.Client{},
	}, nil
}

func (d *Discord) Open() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	logging.Get().Info("✅ Connected to Discord gateway")
	return nil
}

func (d *Discord) Close() error {
	return d.session.Close()
}

// Listen routes gateway events to h. Bot authors are ignored.
func (d *Discord) Listen(h EventHandler) {
	d.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		msg := toMessage(m.Message)
		if m.GuildID == "" {
			h.OnDirectMessage(context.Background(), msg)
			return
		}
		if m.GuildID != d.guildID {
			return
		}
		author := Member{User: msg.Author}
		if m.Member != nil {
			author.Nickname = m.Member.Nick
			author.RoleIDs = m.Member.Roles
		}
		h.OnChannelMessage(context.Background(), msg, author)
	})

	d.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageUpdate) {
		if m.Message == nil || m.GuildID != d.guildID || (m.Author != nil && m.Author.Bot) {
			return
		}
		h.OnChannelMessageEdit(context.Background(), toMessage(m.Message))
	})
}

func (d *Discord) OpenDirectChannel(ctx context.Context, userID string) (string, error) {
	ch, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err, ErrUserUnreachable)
	}
	return ch.ID, nil
}

func (d *Discord) Send(ctx context.Context, channelID string, msg MessageSend) (*Message, error) {
	data := &discordgo.MessageSend{Content: msg.Content}
	if msg.Embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{{
			Title:       msg.Embed.Title,
			Description: msg.Embed.Description,
			URL:         msg.Embed.URL,
		}}
	}
	for _, f := range msg.Files {
		data.Files = append(data.Files, &discordgo.File{Name: f.Name, ContentType: f.ContentType, Reader: f.Reader})
	}

	sent, err := d.session.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err, nil)
	}
	out := toMessage(sent)
	return &out, nil
}

func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return classify(err, nil)
	}
	return nil
}

func (d *Discord) CreateChannel(ctx context.Context, name string) (string, error) {
	ch, err := d.session.GuildChannelCreateComplex(d.guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: d.categoryID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err, nil)
	}
	return ch.ID, nil
}

func (d *Discord) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := d.session.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return classify(err, nil)
	}
	return nil
}

func (d *Discord) GuildRoles(ctx context.Context) ([]Role, error) {
	roles, err := d.session.GuildRoles(d.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err, nil)
	}
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, Role{ID: r.ID, Name: r.Name, Position: r.Position})
	}
	return out, nil
}

func (d *Discord) FetchAttachment(ctx context.Context, att Attachment) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid attachment url: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attachment download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("attachment download failed: %s", resp.Status)
	}
	return resp.Body, nil
}

// classify maps discord REST failures onto the package sentinels.
// fallback, when set, is used for any other REST failure.
func classify(err error, fallback error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			switch restErr.Message.Code {
			case discordgo.ErrCodeUnknownChannel:
				return fmt.Errorf("%w: %v", ErrChannelNotFound, err)
			case discordgo.ErrCodeCannotSendMessagesToThisUser:
				return fmt.Errorf("%w: %v", ErrUserUnreachable, err)
			}
		}
		if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound && fallback == nil {
			return fmt.Errorf("%w: %v", ErrChannelNotFound, err)
		}
		if fallback != nil {
			return fmt.Errorf("%w: %v", fallback, err)
		}
	}
	return err
}

func toMessage(m *discordgo.Message) Message {
	msg := Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		msg.Author = User{ID: m.Author.ID, Username: m.Author.Username, Discriminator: m.Author.Discriminator}
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			URL:         a.URL,
			Size:        uint64(a.Size),
		})
	}
	for _, e := range m.Embeds {
		msg.Embeds = append(msg.Embeds, Embed{Title: e.Title, Description: e.Description, URL: e.URL})
	}
	return msg
}
