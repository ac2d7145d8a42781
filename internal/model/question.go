package model

import "time"

// Question is a post in a channel. Responses are embedded and ordered by
// creation; the question is only ever mutated by appending to them.
type Question struct {
	ID         string
	Title      string
	TitleLower string // normalized for case-insensitive lookup
	Body       string
	Channel    string
	AuthorID   string
	Author     string // author's username, resolved on read
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Responses  []Response
}

// Response is an answer owned by exactly one Question.
type Response struct {
	ID         string
	QuestionID string
	Content    string
	AuthorID   string
	Author     string // author's username, resolved on read
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RespondedQuestion is a question some user answered, narrowed to that
// user's own responses.
type RespondedQuestion struct {
	Question  Question
	Responses []Response
}

// UserActivity is the result of the per-user cross-query: what the user
// asked in a channel and what they answered there.
type UserActivity struct {
	UserQuestions      []Question
	RespondedQuestions []RespondedQuestion
}

// IsEmpty reports whether neither set has any entries.
func (a UserActivity) IsEmpty() bool {
	return len(a.UserQuestions) == 0 && len(a.RespondedQuestions) == 0
}

// Page is one slice of a paginated listing.
//
// PrevPage and NextPage are nil when no such page exists.
type Page struct {
	Items    []Question
	Page     int
	PrevPage *int
	NextPage *int
}
