package main

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

// ChatClient wraps the Slack Web API for the operations the triage loop
// needs: channel history, thread replies, threaded posting, and display
// name resolution.
type ChatClient struct {
	api       *slack.Client
	botUserID string

	mu        sync.Mutex
	nameCache map[string]string
}

func NewChatClient(cfg Config) (*ChatClient, error) {
	api := slack.New(cfg.SlackBotToken)
	auth, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack auth test: %w", err)
	}
	return &ChatClient{
		api:       api,
		botUserID: auth.UserID,
		nameCache: make(map[string]string),
	}, nil
}

// FetchMessagesSince returns top-level human messages in the channel newer
// than oldest, in chronological order. Bot posts, thread replies, and
// channel-event subtypes (joins, topic changes) are filtered out.
func (c *ChatClient) FetchMessagesSince(channelID string, oldest time.Time) ([]slack.Message, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Oldest:    slackTimestamp(oldest),
		Limit:     200,
	}

	var messages []slack.Message
	for {
		resp, err := c.api.GetConversationHistory(params)
		if err != nil {
			return nil, fmt.Errorf("fetching channel history: %w", err)
		}
		for _, msg := range resp.Messages {
			if msg.SubType != "" || msg.BotID != "" || msg.User == c.botUserID {
				continue
			}
			if msg.ThreadTimestamp != "" && msg.ThreadTimestamp != msg.Timestamp {
				continue
			}
			messages = append(messages, msg)
		}
		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			break
		}
		params.Cursor = resp.ResponseMetaData.NextCursor
	}

	// History comes back newest-first; the triage loop wants oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// HasBotReply reports whether the bot already replied in the message's
// thread, which marks a message as processed.
func (c *ChatClient) HasBotReply(channelID, threadTS string) (bool, error) {
	replies, _, _, err := c.api.GetConversationReplies(&slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
		Limit:     100,
	})
	if err != nil {
		return false, fmt.Errorf("fetching thread replies: %w", err)
	}
	for _, msg := range replies {
		if msg.Timestamp == threadTS {
			continue
		}
		if msg.User == c.botUserID || msg.BotID != "" {
			return true, nil
		}
	}
	return false, nil
}

// PostThreadReply posts text as a threaded reply under the given message.
func (c *ChatClient) PostThreadReply(channelID, threadTS, text string) error {
	_, _, err := c.api.PostMessage(channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS),
	)
	if err != nil {
		return fmt.Errorf("posting thread reply: %w", err)
	}
	return nil
}

// DisplayName resolves a user ID to a display name, falling back to the
// raw ID when lookup fails. Results are cached for the process lifetime.
func (c *ChatClient) DisplayName(userID string) string {
	if userID == "" {
		return "unknown"
	}
	c.mu.Lock()
	if name, ok := c.nameCache[userID]; ok {
		c.mu.Unlock()
		return name
	}
	c.mu.Unlock()

	user, err := c.api.GetUserInfo(userID)
	if err != nil {
		log.Printf("slack user lookup failed user=%s: %v", userID, err)
		return userID
	}
	name := user.Profile.DisplayName
	if name == "" {
		name = user.RealName
	}
	if name == "" {
		name = user.Name
	}
	if name == "" {
		name = userID
	}

	c.mu.Lock()
	c.nameCache[userID] = name
	c.mu.Unlock()
	return name
}

func slackTimestamp(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

// MessageRef identifies one channel message for the decision log.
func MessageRef(channelID, ts string) string {
	return channelID + ":" + ts
}

// MessageText normalizes a Slack message body for triage: Slack escapes
// are kept, leading/trailing whitespace dropped.
func MessageText(msg slack.Message) string {
	return strings.TrimSpace(msg.Text)
}
