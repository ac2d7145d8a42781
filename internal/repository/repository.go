// Package repository declares the storage interfaces the services depend on.
// internal/repository/sqlite is the production implementation.
package repository

import (
	"context"

	"github.com/sakif/consulthub/internal/model"
)

// AllChannels lists questions across every channel when used as
// ListOptions.Channel.
const AllChannels = "all"

// ListOptions selects one window of a channel feed.
type ListOptions struct {
	Channel string
	Limit   int
	Offset  int
}

// ActivityFilter narrows the per-user cross-query to a single question.
// At most one of QuestionID and TitleLower is set.
type ActivityFilter struct {
	QuestionID string
	TitleLower string
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// ListUsersByChannel returns the users who should be notified about a
	// question posted to channel.
	ListUsersByChannel(ctx context.Context, channel string) ([]model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
}

type QuestionRepository interface {
	CreateQuestion(ctx context.Context, q *model.Question) error
	GetQuestionByID(ctx context.Context, channel, id string) (*model.Question, error)
	GetQuestionByTitle(ctx context.Context, channel, titleLower string) (*model.Question, error)
	ListQuestions(ctx context.Context, opts ListOptions) ([]model.Question, error)
	AddResponse(ctx context.Context, questionID string, resp *model.Response) error
	GetResponse(ctx context.Context, responseID string) (*model.Question, *model.Response, error)
	UserActivity(ctx context.Context, userID, channel string, filter ActivityFilter) (*model.UserActivity, error)
}
