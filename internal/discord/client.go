// Package discord is a thin read-only client for the Discord REST API.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultAPIBaseURL = "https://discord.com/api/v10"
	cdnBaseURL        = "https://cdn.discordapp.com"
	defaultAvatarURL  = cdnBaseURL + "/embed/avatars/0.png"

	// discordEpoch is the first millisecond of 2015, the origin of Discord ids.
	discordEpoch int64 = 1420070400000
)

var (
	ErrNotFound    = errors.New("discord: resource not found")
	ErrNotMember   = errors.New("discord: user is not a member of the guild")
	ErrForbidden   = errors.New("discord: access forbidden")
	ErrUnavailable = errors.New("discord: api unavailable")
	ErrUpstream    = errors.New("discord: unexpected api response")
	ErrNoBotToken  = errors.New("discord: bot token not configured")
	ErrInvalidAuth = errors.New("discord: access token rejected")
)

// User is the subset of a Discord user object the service consumes.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	GlobalName    string    `json:"global_name,omitempty"`
	Discriminator string    `json:"discriminator,omitempty"`
	Avatar        string    `json:"avatar,omitempty"`
	AvatarURL     string    `json:"avatar_url"`
	CreatedAt     time.Time `json:"created_at"`
}

// DisplayName prefers the global display name over the account name.
func (u User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// Guild is a Discord server as seen by a member or the bot.
type Guild struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Icon    string `json:"icon,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// Member is a guild member record.
type Member struct {
	User     *User     `json:"user,omitempty"`
	Nick     string    `json:"nick,omitempty"`
	Roles    []string  `json:"roles"`
	JoinedAt time.Time `json:"joined_at"`
}

// Message is the content of a channel message.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	Author    User      `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Client calls the Discord API with either the bot token or a user's OAuth
// access token. Calls are never retried.
type Client struct {
	baseURL    string
	botToken   string
	httpClient *http.Client
}

// NewClient creates a Discord API client. botToken may be empty, in which
// case bot lookups return ErrNoBotToken.
func NewClient(baseURL, botToken string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultAPIBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		botToken:   strings.TrimSpace(botToken),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// HasBotToken reports whether bot lookups are possible.
func (c *Client) HasBotToken() bool { return c.botToken != "" }

// FetchUser looks up a user profile with the bot token.
func (c *Client) FetchUser(ctx context.Context, userID string) (*User, error) {
	if _, err := ParseID(userID); err != nil {
		return nil, ErrNotFound
	}
	var u User
	if err := c.botGet(ctx, "/users/"+userID, &u); err != nil {
		return nil, err
	}
	u.normalize()
	return &u, nil
}

// FetchGuild looks up guild name and icon with the bot token.
func (c *Client) FetchGuild(ctx context.Context, guildID string) (*Guild, error) {
	if _, err := ParseID(guildID); err != nil {
		return nil, ErrNotFound
	}
	var g Guild
	if err := c.botGet(ctx, "/guilds/"+guildID, &g); err != nil {
		return nil, err
	}
	g.normalize()
	return &g, nil
}

// FetchGuildMember checks that userID belongs to guildID.
func (c *Client) FetchGuildMember(ctx context.Context, guildID, userID string) (*Member, error) {
	if _, err := ParseID(guildID); err != nil {
		return nil, ErrNotFound
	}
	if _, err := ParseID(userID); err != nil {
		return nil, ErrNotMember
	}
	var m Member
	err := c.botGet(ctx, "/guilds/"+guildID+"/members/"+userID, &m)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	if m.User != nil {
		m.User.normalize()
	}
	return &m, nil
}

// FetchMessage reads a single message the bot can see.
func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error) {
	if _, err := ParseID(channelID); err != nil {
		return nil, ErrNotFound
	}
	if _, err := ParseID(messageID); err != nil {
		return nil, ErrNotFound
	}
	var m Message
	if err := c.botGet(ctx, "/channels/"+channelID+"/messages/"+messageID, &m); err != nil {
		return nil, err
	}
	m.Author.normalize()
	return &m, nil
}

// CurrentUser returns the user behind an OAuth access token.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	var u User
	if err := c.get(ctx, "/users/@me", "Bearer "+accessToken, &u); err != nil {
		return nil, err
	}
	u.normalize()
	return &u, nil
}

// CurrentUserGuilds lists the guilds of the user behind an OAuth access token.
func (c *Client) CurrentUserGuilds(ctx context.Context, accessToken string) ([]Guild, error) {
	var guilds []Guild
	if err := c.get(ctx, "/users/@me/guilds", "Bearer "+accessToken, &guilds); err != nil {
		return nil, err
	}
	for i := range guilds {
		guilds[i].normalize()
	}
	return guilds, nil
}

func (c *Client) botGet(ctx context.Context, path string, out any) error {
	if c.botToken == "" {
		return ErrNoBotToken
	}
	return c.get(ctx, path, "Bot "+c.botToken, out)
}

func (c *Client) get(ctx context.Context, path, authorization string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidAuth
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrUpstream, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// ParseID validates a Discord snowflake id.
func ParseID(id string) (snowflake.ID, error) {
	sf, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return 0, fmt.Errorf("invalid discord id %q: %w", id, err)
	}
	if sf <= 0 {
		return 0, fmt.Errorf("invalid discord id %q", id)
	}
	return sf, nil
}

// CreatedAt derives the creation time encoded in a Discord id.
func CreatedAt(id snowflake.ID) time.Time {
	ms := (id.Int64() >> 22) + discordEpoch
	return time.UnixMilli(ms).UTC()
}

func (u *User) normalize() {
	switch {
	case u.Avatar != "":
		u.AvatarURL = fmt.Sprintf("%s/avatars/%s/%s.png", cdnBaseURL, u.ID, u.Avatar)
	case u.AvatarURL == "":
		u.AvatarURL = defaultAvatarURL
	}
	if sf, err := ParseID(u.ID); err == nil {
		u.CreatedAt = CreatedAt(sf)
	}
}

func (g *Guild) normalize() {
	if g.Icon != "" {
		g.IconURL = fmt.Sprintf("%s/icons/%s/%s.png", cdnBaseURL, g.ID, g.Icon)
	}
}
