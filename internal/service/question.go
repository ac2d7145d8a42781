package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sakif/consulthub/internal/apperror"
	"github.com/sakif/consulthub/internal/model"
	"github.com/sakif/consulthub/internal/notify"
	"github.com/sakif/consulthub/internal/repository"
)

// Mail subjects.
const (
	SubjectNewQuestion = "Exploring Together: Check Out the Latest Query"
	SubjectNewResponse = "Your ConsultHub Question Has a New Answer!"
)

// GeneralizedInfo explains why a question landed in the general channel.
const GeneralizedInfo = "You are the only user in the channel, thus your query has been generalized"

// Pagination bounds.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Notifier is the slice of notify.Dispatcher the services use.
type Notifier interface {
	Dispatch(ctx context.Context, subject, template string, envelopes []notify.Envelope) int
}

// QuestionService covers posting, answering and reading questions.
type QuestionService struct {
	questions repository.QuestionRepository
	users     repository.UserRepository
	notifier  Notifier
	logger    *slog.Logger
}

func NewQuestionService(
	questions repository.QuestionRepository,
	users repository.UserRepository,
	notifier Notifier,
	logger *slog.Logger,
) *QuestionService {
	return &QuestionService{
		questions: questions,
		users:     users,
		notifier:  notifier,
		logger:    logger,
	}
}

// PostInput is a new question. General routes it to the general channel
// instead of the author's field.
type PostInput struct {
	Title   string
	Body    string
	General bool
}

// PostResult is the stored question plus MoreInfo, which is non-empty when
// the question was moved to the general channel.
type PostResult struct {
	Question *model.Question
	MoreInfo string
}

// PostQuestion stores a question and mails the channel's subscribers.
//
// GENERAL FALLBACK:
// A question nobody but the author would ever see is rerouted to the
// general channel, and the caller is told so through MoreInfo.
func (s *QuestionService) PostQuestion(ctx context.Context, author *model.User, in PostInput) (*PostResult, error) {
	if utf8.RuneCountInString(in.Title) < minQueryLen || utf8.RuneCountInString(in.Body) < minQueryLen {
		return nil, apperror.ValidationFailed("title", "Invalid query input")
	}

	channel := author.Field
	if in.General {
		channel = model.GeneralChannel
	}

	recipients, err := s.recipients(ctx, channel, author)
	if err != nil {
		return nil, err
	}

	var moreInfo string
	if len(recipients) == 0 && channel != model.GeneralChannel {
		channel = model.GeneralChannel
		moreInfo = GeneralizedInfo
		if recipients, err = s.recipients(ctx, channel, author); err != nil {
			return nil, err
		}
	}

	q := &model.Question{
		ID:         model.NewID(),
		Title:      in.Title,
		TitleLower: strings.ToLower(in.Title),
		Body:       in.Body,
		Channel:    channel,
		AuthorID:   author.ID,
		Author:     author.Username,
	}
	if err := s.questions.CreateQuestion(ctx, q); err != nil {
		return nil, fmt.Errorf("service/question: creating question: %w", err)
	}

	envelopes := make([]notify.Envelope, 0, len(recipients))
	for _, u := range recipients {
		envelopes = append(envelopes, notify.Envelope{
			To: u.Email,
			Data: notify.QuestionMail{
				Recipient:  u.Username,
				Channel:    capitalize(channel),
				Title:      capitalize(q.Title),
				Body:       q.Body,
				QuestionID: q.ID,
			},
		})
	}
	delivered := s.notifier.Dispatch(ctx, SubjectNewQuestion, notify.TemplateQuestion, envelopes)

	s.logger.Info("question posted",
		slog.String("questionID", q.ID),
		slog.String("channel", q.Channel),
		slog.String("author", author.Username),
		slog.Int("notified", delivered),
	)
	return &PostResult{Question: q, MoreInfo: moreInfo}, nil
}

// recipients lists the channel's subscribers minus the author.
func (s *QuestionService) recipients(ctx context.Context, channel string, author *model.User) ([]model.User, error) {
	users, err := s.users.ListUsersByChannel(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("service/question: listing recipients for %s: %w", channel, err)
	}
	out := users[:0]
	for _, u := range users {
		if u.Username != author.Username {
			out = append(out, u)
		}
	}
	return out, nil
}

// RespondResult is the appended response and the question it belongs to.
type RespondResult struct {
	Question *model.Question
	Response *model.Response
}

// Respond appends an answer to a question in channel and mails the
// questioner.
func (s *QuestionService) Respond(ctx context.Context, author *model.User, channel, questionID, content string) (*RespondResult, error) {
	if !model.IsID(questionID) {
		return nil, apperror.ValidationFailed("question_id", "Invalid question Id")
	}
	questionID = model.NormalizeID(questionID)

	q, err := s.questions.GetQuestionByID(ctx, channel, questionID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("No question with that Id")
		}
		return nil, fmt.Errorf("service/question: loading %s: %w", questionID, err)
	}

	if strings.TrimSpace(content) == "" {
		return nil, apperror.ValidationFailed("content", "Invalid content")
	}

	resp := &model.Response{
		ID:       model.NewID(),
		Content:  content,
		AuthorID: author.ID,
		Author:   author.Username,
	}
	if err := s.questions.AddResponse(ctx, q.ID, resp); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("No question with that Id")
		}
		return nil, fmt.Errorf("service/question: adding response to %s: %w", q.ID, err)
	}
	q.Responses = append(q.Responses, *resp)

	s.notifyQuestioner(ctx, q, resp)

	s.logger.Info("response posted",
		slog.String("questionID", q.ID),
		slog.String("responseID", resp.ID),
		slog.String("author", author.Username),
	)
	return &RespondResult{Question: q, Response: resp}, nil
}

// notifyQuestioner mails the question's author, unless they answered
// their own question. A missing author only costs the mail.
func (s *QuestionService) notifyQuestioner(ctx context.Context, q *model.Question, resp *model.Response) {
	if q.AuthorID == resp.AuthorID {
		return
	}
	questioner, err := s.users.GetUserByID(ctx, q.AuthorID)
	if err != nil {
		s.logger.Warn("questioner lookup failed, skipping notification",
			slog.String("questionID", q.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.notifier.Dispatch(ctx, SubjectNewResponse, notify.TemplateResponse, []notify.Envelope{{
		To: questioner.Email,
		Data: notify.ResponseMail{
			Questioner: questioner.Username,
			Channel:    q.Channel,
			Question:   q.Body,
			Response:   resp.Content,
			ResponseID: resp.ID,
		},
	}})
}

// maxPage keeps (page-1)*size and page+1 inside an int.
const maxPage = math.MaxInt / MaxPageSize

// NormalizePage applies the pagination defaults and bounds. Zero means
// "not given".
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if size == 0 {
		size = DefaultPageSize
	}
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// ListChannel returns one page of channel. repository.AllChannels lists
// every channel.
//
// ONE EXTRA ROW:
// We ask the store for size+1 rows. If the extra row comes back there is a
// next page; it is trimmed before returning.
func (s *QuestionService) ListChannel(ctx context.Context, channel string, page, size int) (*model.Page, error) {
	page, size = NormalizePage(page, size)

	items, err := s.questions.ListQuestions(ctx, repository.ListOptions{
		Channel: channel,
		Limit:   size + 1,
		Offset:  (page - 1) * size,
	})
	if err != nil {
		return nil, fmt.Errorf("service/question: listing %s: %w", channel, err)
	}

	result := &model.Page{Items: items, Page: page}
	if len(items) > size {
		result.Items = items[:size]
		next := page + 1
		result.NextPage = &next
	}
	if page > 1 {
		prev := page - 1
		result.PrevPage = &prev
	}
	return result, nil
}

// FindQuestion looks a question up by id, then by title.
//
// A 24-hex string is tried as an id first; if that finds nothing (or the
// input is not an id) it is read as a title with underscores standing in
// for spaces.
func (s *QuestionService) FindQuestion(ctx context.Context, channel, idOrTitle string) (*model.Question, error) {
	if model.IsID(idOrTitle) {
		q, err := s.questions.GetQuestionByID(ctx, channel, model.NormalizeID(idOrTitle))
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/question: loading %s: %w", idOrTitle, err)
		}
	}

	q, err := s.questions.GetQuestionByTitle(ctx, channel, strings.ToLower(titleFromPath(idOrTitle)))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Invalid channel, question title or id")
		}
		return nil, fmt.Errorf("service/question: loading by title: %w", err)
	}
	return q, nil
}

// Activity runs the per-user cross-query. idOrTitle may be empty; when it
// is an id that matches neither set, it is retried as a title.
func (s *QuestionService) Activity(ctx context.Context, caller *model.User, channel, username, idOrTitle string) (*model.UserActivity, error) {
	user, err := s.resolveUser(ctx, caller, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("username", "Invalid Username")
		}
		return nil, err
	}

	if idOrTitle == "" {
		return s.activity(ctx, user.ID, channel, repository.ActivityFilter{})
	}

	titleFilter := repository.ActivityFilter{TitleLower: strings.ToLower(titleFromPath(idOrTitle))}
	if !model.IsID(idOrTitle) {
		return s.activity(ctx, user.ID, channel, titleFilter)
	}

	act, err := s.activity(ctx, user.ID, channel, repository.ActivityFilter{QuestionID: model.NormalizeID(idOrTitle)})
	if err != nil || !act.IsEmpty() {
		return act, err
	}
	return s.activity(ctx, user.ID, channel, titleFilter)
}

// MultiActivity runs Activity for several names, keyed by the name as
// given. The first unknown name fails the whole request.
func (s *QuestionService) MultiActivity(ctx context.Context, caller *model.User, channel string, names []string) (map[string]*model.UserActivity, error) {
	out := make(map[string]*model.UserActivity, len(names))
	for _, name := range names {
		user, err := s.resolveUser(ctx, caller, name)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil, apperror.ValidationFailed("name", "Invalid username "+name)
			}
			return nil, err
		}
		act, err := s.activity(ctx, user.ID, channel, repository.ActivityFilter{})
		if err != nil {
			return nil, err
		}
		out[name] = act
	}
	return out, nil
}

func (s *QuestionService) activity(ctx context.Context, userID, channel string, f repository.ActivityFilter) (*model.UserActivity, error) {
	act, err := s.questions.UserActivity(ctx, userID, channel, f)
	if err != nil {
		return nil, fmt.Errorf("service/question: activity for %s: %w", userID, err)
	}
	return act, nil
}

// resolveUser maps "me" (any case) to the caller and anything else to a
// stored user. Unknown names return an apperror.ErrNotFound error.
func (s *QuestionService) resolveUser(ctx context.Context, caller *model.User, name string) (*model.User, error) {
	if strings.ToLower(name) == Me {
		return caller, nil
	}
	user, err := s.users.GetUserByUsername(ctx, strings.ToLower(name))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/question: loading user %s: %w", name, err)
	}
	return user, nil
}

// GetResponse returns a response and its parent question.
func (s *QuestionService) GetResponse(ctx context.Context, responseID string) (*model.Question, *model.Response, error) {
	if !model.IsID(responseID) {
		return nil, nil, apperror.ValidationFailed("response_id", "Invalid response id")
	}
	q, r, err := s.questions.GetResponse(ctx, model.NormalizeID(responseID))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil, apperror.NotFoundMessage("Invalid response id")
		}
		return nil, nil, fmt.Errorf("service/question: loading response %s: %w", responseID, err)
	}
	return q, r, nil
}
