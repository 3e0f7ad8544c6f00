package reddit

// Comment is one comment from the subreddit firehose.
// Fullname is the t1_-prefixed id used by listing cursors; LinkID is the
// t3_-prefixed fullname of the submission the comment belongs to.
type Comment struct {
	ID         string  `json:"id"`
	Fullname   string  `json:"name"`
	Body       string  `json:"body"`
	Author     string  `json:"author"`
	LinkID     string  `json:"link_id"`
	CreatedUTC float64 `json:"created_utc"`
}

// Submission is the parent post a comment hangs off.
type Submission struct {
	ID       string `json:"id"`
	Fullname string `json:"name"`
	Title    string `json:"title"`
	SelfText string `json:"selftext"`
	Author   string `json:"author"`
	IsSelf   bool   `json:"is_self"`
}
