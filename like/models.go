package like

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the direction of a toggle
type Status string

const (
	StatusLike   Status = "Like"
	StatusUnlike Status = "Unlike"
)

// sync-status hash values, one field per user
const (
	syncLiked   = "1"
	syncUnliked = "0"
)

func (s Status) syncValue() string {
	if s == StatusLike {
		return syncLiked
	}
	return syncUnliked
}

func (s Status) MarshalJSON() ([]byte, error) {
	switch s {
	case StatusLike, StatusUnlike:
		return json.Marshal(string(s))
	default:
		return nil, fmt.Errorf("like: unknown status %q", string(s))
	}
}

// Result is what a toggle reports back to the caller. LikeCount is the
// cache's view and may later be superseded by the reconciled count.
type Result struct {
	Status    Status `json:"status"`
	LikeCount int64  `json:"likeCount"`
}

// Tweet is the entity record in the system of record; LikeCount is
// written only by the reconciler.
type Tweet struct {
	ID        string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"size:64;not null;index"`
	Content   string `gorm:"type:text"`
	LikeCount int64  `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Tweet) TableName() string { return "tweets" }

// Like is one (tweet, user) edge
type Like struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	TweetID   string    `gorm:"size:64;not null;uniqueIndex:idx_likes_tweet_user,priority:1"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_likes_tweet_user,priority:2"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Like) TableName() string { return "likes" }

// Notification tells Recipient that Actor liked Subject
type Notification struct {
	Type      string    `json:"event_type"`
	Actor     string    `json:"actor"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationTypeLike is the only notification type emitted here
const NotificationTypeLike = "like"

// Changes is one drained batch of final per-user states for a tweet
type Changes struct {
	TweetID string
	Liked   []string
	Unliked []string
}
