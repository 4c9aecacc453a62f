package like

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TweetLookup resolves a tweet's owner; ErrTweetNotFound when it is gone
type TweetLookup interface {
	OwnerOf(ctx context.Context, tweetID string) (string, error)
}

// CountSource reads the cache counter inside the transaction; ok is false
// when the counter is missing or unreadable
type CountSource func(ctx context.Context) (count int64, ok bool)

// LikeWriter applies a drained batch to the system of record in one
// transaction and reports which users gained an edge they did not have
type LikeWriter interface {
	ApplyLikes(ctx context.Context, changes Changes, count CountSource) (newlyLiked []string, err error)
}

// Repository is the gorm-backed system of record for tweets and like edges
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository creates a Repository over db
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// AutoMigrate creates or updates the tweets and likes tables
func (r *Repository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Tweet{}, &Like{})
}

// OwnerOf returns the author of tweetID, or ErrTweetNotFound
func (r *Repository) OwnerOf(ctx context.Context, tweetID string) (string, error) {
	var t Tweet
	err := r.db.WithContext(ctx).Select("id", "user_id").Where("id = ?", tweetID).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrTweetNotFound
	}
	if err != nil {
		return "", err
	}
	return t.UserID, nil
}

// ApplyLikes deletes the unliked edges, inserts the liked ones (an existing
// edge keeps its creation time) and writes the authoritative like count.
// The count comes from the cache counter; when that is unavailable the
// edges are counted instead.
func (r *Repository) ApplyLikes(ctx context.Context, changes Changes, count CountSource) ([]string, error) {
	var newlyLiked []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		newlyLiked = nil

		if len(changes.Unliked) > 0 {
			if err := tx.Where("tweet_id = ? AND user_id IN ?", changes.TweetID, changes.Unliked).
				Delete(&Like{}).Error; err != nil {
				return err
			}
		}

		if len(changes.Liked) > 0 {
			var existing []string
			if err := tx.Model(&Like{}).
				Where("tweet_id = ? AND user_id IN ?", changes.TweetID, changes.Liked).
				Pluck("user_id", &existing).Error; err != nil {
				return err
			}

			now := r.now()
			edges := make([]Like, len(changes.Liked))
			for i, userID := range changes.Liked {
				edges[i] = Like{TweetID: changes.TweetID, UserID: userID, CreatedAt: now}
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "tweet_id"}, {Name: "user_id"}},
				DoNothing: true,
			}).Create(&edges).Error; err != nil {
				return err
			}

			newlyLiked = subtract(changes.Liked, existing)
		}

		likeCount, ok := count(ctx)
		if !ok {
			if err := tx.Model(&Like{}).Where("tweet_id = ?", changes.TweetID).Count(&likeCount).Error; err != nil {
				return err
			}
		}

		return tx.Model(&Tweet{}).Where("id = ?", changes.TweetID).Update("like_count", likeCount).Error
	})
	if err != nil {
		return nil, ErrApply(changes.TweetID, err)
	}
	return newlyLiked, nil
}

// LikeCount returns the reconciled count stored on the tweet
func (r *Repository) LikeCount(ctx context.Context, tweetID string) (int64, error) {
	var t Tweet
	err := r.db.WithContext(ctx).Select("like_count").Where("id = ?", tweetID).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrTweetNotFound
	}
	return t.LikeCount, err
}

// LikedBy returns the users with an edge on the tweet, oldest first
func (r *Repository) LikedBy(ctx context.Context, tweetID string) ([]string, error) {
	var users []string
	err := r.db.WithContext(ctx).Model(&Like{}).
		Where("tweet_id = ?", tweetID).
		Order("created_at, id").
		Pluck("user_id", &users).Error
	return users, err
}

// CreateTweet inserts a tweet record
func (r *Repository) CreateTweet(ctx context.Context, t *Tweet) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func subtract(all, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, s := range remove {
		drop[s] = struct{}{}
	}
	var out []string
	for _, s := range all {
		if _, ok := drop[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
