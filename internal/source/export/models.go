package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// exportedChat is the root of a Telegram Desktop result.json.
type exportedChat struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	ID       int64     `json:"id"`
	Messages []message `json:"messages"`
}

type message struct {
	ID               int64       `json:"id"`
	Type             string      `json:"type"`
	Date             string      `json:"date"`
	DateUnixtime     string      `json:"date_unixtime"`
	Edited           string      `json:"edited"`
	EditedUnixtime   string      `json:"edited_unixtime"`
	From             string      `json:"from"`
	FromID           string      `json:"from_id"`
	ReplyToMessageID int64       `json:"reply_to_message_id"`
	ForwardedFrom    string      `json:"forwarded_from"`
	Photo            string      `json:"photo"`
	File             string      `json:"file"`
	MediaType        string      `json:"media_type"`
	Text             messageText `json:"text"`
}

// messageText is either a plain string or an array mixing strings and
// {"type": ..., "text": ...} entities.
type messageText string

func (t *messageText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = messageText(s)
		return nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("text is neither a string nor an array: %w", err)
	}
	var b strings.Builder
	for _, part := range parts {
		var s string
		if err := json.Unmarshal(part, &s); err == nil {
			b.WriteString(s)
			continue
		}
		var entity struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(part, &entity); err != nil {
			return fmt.Errorf("invalid text entity: %w", err)
		}
		b.WriteString(entity.Text)
	}
	*t = messageText(b.String())
	return nil
}
