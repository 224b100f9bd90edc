package model

import "time"

// Comment is an append-only remark on a poll. Only its author may delete it;
// there is no edit.
type Comment struct {
	ID        string    `json:"id"`
	PollID    string    `json:"pollId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
