package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/sakif/consulthub/internal/apperror"
	"github.com/sakif/consulthub/internal/model"
	"github.com/sakif/consulthub/internal/notify"
	"github.com/sakif/consulthub/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUserRepo is an in-memory repository.UserRepository. Users are kept in
// insertion order.
type fakeUserRepo struct {
	users []*model.User
	// set to simulate a database failure
	err error
}

func (f *fakeUserRepo) find(match func(*model.User) bool, key string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", key)
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	if f.err != nil {
		return f.err
	}
	cp := *user
	f.users = append(f.users, &cp)
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id }, id)
}

func (f *fakeUserRepo) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Username == username }, username)
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Email == email }, email)
}

func (f *fakeUserRepo) ListUsersByChannel(_ context.Context, channel string) ([]model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.User
	for _, u := range f.users {
		if channel == model.GeneralChannel && u.Notifications.GeneralChannel ||
			channel != model.GeneralChannel && u.Field == channel && u.Notifications.OwnChannel {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) UpdateUser(_ context.Context, user *model.User) error {
	if f.err != nil {
		return f.err
	}
	for i, u := range f.users {
		if u.ID == user.ID {
			cp := *user
			f.users[i] = &cp
			return nil
		}
	}
	return apperror.NotFound("user", user.ID)
}

func (f *fakeUserRepo) add(username, field string, n model.Notifications) *model.User {
	u := &model.User{
		ID:            model.NewID(),
		Username:      username,
		Email:         username + "@gmail.com",
		Field:         field,
		Notifications: n,
	}
	f.users = append(f.users, u)
	cp := *u
	return &cp
}

// fakeQuestionRepo keeps questions in memory and records the options it
// was listed with.
type fakeQuestionRepo struct {
	questions []*model.Question
	lastList  repository.ListOptions
	filters   []repository.ActivityFilter
	err       error
}

func (f *fakeQuestionRepo) CreateQuestion(_ context.Context, q *model.Question) error {
	if f.err != nil {
		return f.err
	}
	cp := *q
	f.questions = append(f.questions, &cp)
	return nil
}

func (f *fakeQuestionRepo) get(channel string, match func(*model.Question) bool) (*model.Question, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, q := range f.questions {
		if (channel == repository.AllChannels || q.Channel == channel) && match(q) {
			cp := *q
			return &cp, nil
		}
	}
	return nil, apperror.NotFoundMessage("question not found")
}

func (f *fakeQuestionRepo) GetQuestionByID(_ context.Context, channel, id string) (*model.Question, error) {
	return f.get(channel, func(q *model.Question) bool { return q.ID == id })
}

func (f *fakeQuestionRepo) GetQuestionByTitle(_ context.Context, channel, titleLower string) (*model.Question, error) {
	return f.get(channel, func(q *model.Question) bool { return strings.ToLower(q.Title) == titleLower })
}

func (f *fakeQuestionRepo) ListQuestions(_ context.Context, opts repository.ListOptions) ([]model.Question, error) {
	f.lastList = opts
	if f.err != nil {
		return nil, f.err
	}
	var all []model.Question
	for _, q := range f.questions {
		if opts.Channel == repository.AllChannels || q.Channel == opts.Channel {
			all = append(all, *q)
		}
	}
	if opts.Offset >= len(all) {
		return []model.Question{}, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[opts.Offset:end], nil
}

func (f *fakeQuestionRepo) AddResponse(_ context.Context, questionID string, resp *model.Response) error {
	if f.err != nil {
		return f.err
	}
	for _, q := range f.questions {
		if q.ID == questionID {
			resp.QuestionID = questionID
			q.Responses = append(q.Responses, *resp)
			return nil
		}
	}
	return apperror.NotFound("question", questionID)
}

func (f *fakeQuestionRepo) GetResponse(_ context.Context, responseID string) (*model.Question, *model.Response, error) {
	for _, q := range f.questions {
		for _, r := range q.Responses {
			if r.ID == responseID {
				cq, cr := *q, r
				return &cq, &cr, nil
			}
		}
	}
	return nil, nil, apperror.NotFound("response", responseID)
}

func (f *fakeQuestionRepo) UserActivity(_ context.Context, userID, channel string, filter repository.ActivityFilter) (*model.UserActivity, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	act := &model.UserActivity{UserQuestions: []model.Question{}, RespondedQuestions: []model.RespondedQuestion{}}
	for _, q := range f.questions {
		if q.Channel != channel {
			continue
		}
		if filter.QuestionID != "" && q.ID != filter.QuestionID {
			continue
		}
		if filter.TitleLower != "" && strings.ToLower(q.Title) != filter.TitleLower {
			continue
		}
		if q.AuthorID == userID {
			act.UserQuestions = append(act.UserQuestions, *q)
			continue
		}
		var mine []model.Response
		for _, r := range q.Responses {
			if r.AuthorID == userID {
				mine = append(mine, r)
			}
		}
		if len(mine) > 0 {
			act.RespondedQuestions = append(act.RespondedQuestions, model.RespondedQuestion{Question: *q, Responses: mine})
		}
	}
	return act, nil
}

// recordingNotifier captures every Dispatch call.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []dispatchCall
}

type dispatchCall struct {
	subject   string
	template  string
	envelopes []notify.Envelope
}

func (r *recordingNotifier) Dispatch(_ context.Context, subject, template string, envelopes []notify.Envelope) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, dispatchCall{subject: subject, template: template, envelopes: envelopes})
	return len(envelopes)
}

var (
	_ repository.UserRepository     = (*fakeUserRepo)(nil)
	_ repository.QuestionRepository = (*fakeQuestionRepo)(nil)
	_ Notifier                      = (*recordingNotifier)(nil)
)
