// Package reddit is the feed collaborator: a rate-limited OAuth2 client for
// the subset of the Reddit API the bot needs (comment firehose, detail
// lookups, replies).
package reddit

import "context"

// Client is the feed contract the dispatch engine consumes.
//
// Stream returns comments newest first, only items newer than cursor
// (cursor "" means from the top of the listing). All implementations pass
// every outbound call through the shared token bucket.
type Client interface {
	Stream(ctx context.Context, cursor string, limit int) ([]Comment, error)
	Comment(ctx context.Context, id string) (Comment, error)
	Parent(ctx context.Context, c Comment) (Submission, error)
	Reply(ctx context.Context, c Comment, body string) error
}
