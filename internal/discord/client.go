// Package discord reads guild metadata, webhooks and channels from the
// Discord REST API with a bot credential.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/parsascontentcorner/followmanager/internal/config"
	"github.com/parsascontentcorner/followmanager/internal/ratelimit"
)

const userAgent = "DiscordBot (https://github.com/parsascontentcorner/followmanager, 1.0)"

// maxErrorBodyBytes caps how much of an error response is kept for diagnostics
const maxErrorBodyBytes = 64 << 10

// Client is a read-only Discord REST client
type Client struct {
	botClient   *http.Client // attaches "Authorization: Bot <token>"
	userClient  *http.Client // caller supplies the bearer token
	baseURL     string
	logger      *zap.Logger
	rateLimiter *ratelimit.RateLimiter
}

// NewClient creates a Discord client authenticated with the configured bot token
func NewClient(cfg config.DiscordConfig, logger *zap.Logger) *Client {
	// Bot tokens use the "Bot" scheme; oauth2 keeps unknown token types verbatim
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.BotToken,
		TokenType:   "Bot",
	})

	return &Client{
		botClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &oauth2.Transport{
				Source: tokenSource,
				Base:   http.DefaultTransport,
			},
		},
		userClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		logger:     logger,
	}
}

// SetRateLimiter sets the rate limiter for the Discord client
func (c *Client) SetRateLimiter(rl *ratelimit.RateLimiter) {
	c.rateLimiter = rl
}

// SetBaseURL sets the base URL for the Discord API (used for testing)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// GetGuild fetches guild metadata
func (c *Client) GetGuild(ctx context.Context, guildID string) (*Guild, error) {
	var guild Guild
	if err := c.getJSON(ctx, c.botClient, "/guilds/"+url.PathEscape(guildID), "", &guild); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched guild from Discord",
		zap.String("guild_id", guildID),
		zap.String("guild_name", guild.Name),
	)

	return &guild, nil
}

// GetGuildWebhooks fetches every webhook in a guild, of every type
func (c *Client) GetGuildWebhooks(ctx context.Context, guildID string) ([]Webhook, error) {
	var webhooks []Webhook
	if err := c.getJSON(ctx, c.botClient, "/guilds/"+url.PathEscape(guildID)+"/webhooks", "", &webhooks); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched guild webhooks from Discord",
		zap.String("guild_id", guildID),
		zap.Int("webhook_count", len(webhooks)),
	)

	return webhooks, nil
}

// GetGuildChannels fetches channels for a guild
func (c *Client) GetGuildChannels(ctx context.Context, guildID string) ([]Channel, error) {
	var channels []Channel
	if err := c.getJSON(ctx, c.botClient, "/guilds/"+url.PathEscape(guildID)+"/channels", "", &channels); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched guild channels from Discord",
		zap.String("guild_id", guildID),
		zap.Int("channel_count", len(channels)),
	)

	return channels, nil
}

// FetchGuildRecords reads guild metadata, webhooks and channels concurrently.
// The first failure cancels the other reads and is returned; there are no
// partial results and no retries.
func (c *Client) FetchGuildRecords(ctx context.Context, guildID string) (*GuildRecords, error) {
	records := &GuildRecords{GuildID: guildID}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		guild, err := c.GetGuild(gctx, guildID)
		if err != nil {
			return err
		}
		records.Guild = *guild
		return nil
	})

	g.Go(func() error {
		webhooks, err := c.GetGuildWebhooks(gctx, guildID)
		if err != nil {
			return err
		}
		records.Webhooks = webhooks
		return nil
	})

	g.Go(func() error {
		channels, err := c.GetGuildChannels(gctx, guildID)
		if err != nil {
			return err
		}
		records.Channels = channels
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return records, nil
}

// GetCurrentUser resolves the user an OAuth2 access token belongs to
func (c *Client) GetCurrentUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.getJSON(ctx, c.userClient, "/users/@me", accessToken, &user); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched user info from Discord",
		zap.String("discord_id", user.ID),
		zap.String("username", user.Username),
	)

	return &user, nil
}

// getJSON performs a GET and decodes a 2xx body into out. Non-2xx
// responses and exhausted rate limit buckets become *RequestError.
// Bot requests share the per-route buckets. Discord limits /users/@me per
// access token, so user requests bypass them.
func (c *Client) getJSON(ctx context.Context, client *http.Client, path, bearerToken string, out interface{}) error {
	limiter := c.rateLimiter
	if bearerToken != "" {
		limiter = nil
	}

	if limiter != nil {
		if err := limiter.Wait(ctx, path); err != nil {
			var exhausted *ratelimit.ExhaustedError
			if errors.As(err, &exhausted) {
				return &RequestError{
					Kind:   ErrorKind,
					Status: http.StatusTooManyRequests,
					Path:   path,
				}
			}
			return fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request to %s: %w", path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if limiter != nil {
		limiter.UpdateFromHeaders(path, resp.Header)
		if resp.StatusCode == http.StatusTooManyRequests {
			limiter.HandleRateLimitResponse(path, resp.Header)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Warn("discord API request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("response_body", string(body)),
		)
		return &RequestError{
			Kind:         ErrorKind,
			Status:       resp.StatusCode,
			Path:         path,
			ResponseBody: string(body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}
