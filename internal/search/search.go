// Package search provides room-scoped full-text message search with
// Meilisearch as the primary engine and Postgres FTS as the fallback.
package search

// Query is a message search request. RoomIDs restricts results to rooms
// the actor can see; an empty list matches nothing.
type Query struct {
	Text    string
	RoomIDs []string
	Limit   int
	Offset  int
}

// Result is one search hit.
type Result struct {
	MessageID int64  `json:"messageId"`
	RoomID    string `json:"roomId"`
	CreatorID string `json:"creatorId"`
	Snippet   string `json:"snippet"`
}

// Response wraps hits with the total estimate for paging.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// MessageRecord is the indexable projection of a message.
type MessageRecord struct {
	ID        int64  `json:"id"`
	RoomID    string `json:"roomId"`
	CreatorID string `json:"creatorId"`
	Body      string `json:"body"`
}
