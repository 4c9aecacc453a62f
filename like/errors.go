package like

import "fmt"

var (
	// ErrInvalidArgument is returned for an empty user or tweet id
	ErrInvalidArgument = fmt.Errorf("like: user id and tweet id are required")

	// ErrTweetNotFound is returned by TweetLookup for a deleted or unknown tweet
	ErrTweetNotFound = fmt.Errorf("like: tweet not found")
)

// ErrInvalidConfig invalid config
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("like: invalid config: %s", msg)
}

// ErrToggle wraps a failed core toggle batch; the toggle did not happen
func ErrToggle(tweetID string, err error) error {
	return fmt.Errorf("like: toggle on tweet %s failed: %w", tweetID, err)
}

// ErrApply wraps a failed reconciliation transaction
func ErrApply(tweetID string, err error) error {
	return fmt.Errorf("like: apply likes for tweet %s failed: %w", tweetID, err)
}

// ErrNotify wraps a notification that could not be delivered
func ErrNotify(n Notification, err error) error {
	return fmt.Errorf("like: notify %s about %s failed: %w", n.Recipient, n.Subject, err)
}

// ErrSample wraps a failed backlog sample
func ErrSample(err error) error {
	return fmt.Errorf("like: sample backlog failed: %w", err)
}

// ErrDecodeEvent wraps an undecodable notification message
func ErrDecodeEvent(err error) error {
	return fmt.Errorf("like: decode notification event failed: %w", err)
}

// ErrRequeue is returned when a parked tweet could not be pushed back
func ErrRequeue(tweetID string) error {
	return fmt.Errorf("like: requeue parked tweet %s failed", tweetID)
}
