package chat

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// Cursor directions. "next" continues the newest-first scan toward older
// messages; "prev" walks back toward newer ones.
const (
	dirNext = "next"
	dirPrev = "prev"
)

// cursor anchors a page boundary on a (createdAt, id) row key instead of an
// offset, so concurrent inserts can never skip or duplicate rows. It carries
// the conversation it was minted for; a cursor presented against another
// conversation is rejected like any other malformed cursor.
type cursor struct {
	ConversationID string `json:"c"`
	CreatedAt      int64  `json:"t"` // UnixNano
	ID             uint64 `json:"id"`
	Dir            string `json:"d"`
}

// at returns the anchor timestamp. UTC keeps the serialized form comparable
// with stored timestamps.
func (c *cursor) at() time.Time {
	return time.Unix(0, c.CreatedAt).UTC()
}

func encodeCursor(conversationID string, t time.Time, id uint64, dir string) string {
	b, _ := json.Marshal(cursor{
		ConversationID: conversationID,
		CreatedAt:      t.UnixNano(),
		ID:             id,
		Dir:            dir,
	})
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(s, conversationID string) (*cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, &ValidationError{Reason: "malformed cursor"}
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, &ValidationError{Reason: "malformed cursor"}
	}
	if c.Dir != dirNext && c.Dir != dirPrev {
		return nil, &ValidationError{Reason: "malformed cursor"}
	}
	if c.ConversationID != conversationID {
		return nil, &ValidationError{Reason: "cursor does not belong to this conversation"}
	}
	return &c, nil
}
