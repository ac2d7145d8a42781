package handler

import (
	"time"

	"github.com/sakif/consulthub/internal/model"
)

// timeLayout is how every timestamp leaves the API.
const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

type responseView struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type questionView struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	QueryText string         `json:"query_text"`
	Channel   string         `json:"channel"`
	Author    string         `json:"author"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
	Responses []responseView `json:"responses"`
}

// respondedView is a question someone else asked, carrying only the
// responses of the user being looked at.
type respondedView struct {
	QuestionID string         `json:"question_id"`
	Title      string         `json:"title"`
	QueryText  string         `json:"query_text"`
	Channel    string         `json:"channel"`
	Author     string         `json:"author"`
	Responses  []responseView `json:"responses"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
}

type activityView struct {
	UserQuestions      []questionView  `json:"user_questions"`
	RespondedQuestions []respondedView `json:"responded_questions"`
}

func newResponseViews(rs []model.Response) []responseView {
	out := make([]responseView, 0, len(rs))
	for _, r := range rs {
		out = append(out, responseView{
			ID:        r.ID,
			Content:   r.Content,
			Author:    r.Author,
			CreatedAt: formatTime(r.CreatedAt),
			UpdatedAt: formatTime(r.UpdatedAt),
		})
	}
	return out
}

func newQuestionView(q *model.Question) questionView {
	return questionView{
		ID:        q.ID,
		Title:     q.Title,
		QueryText: q.Body,
		Channel:   q.Channel,
		Author:    q.Author,
		CreatedAt: formatTime(q.CreatedAt),
		UpdatedAt: formatTime(q.UpdatedAt),
		Responses: newResponseViews(q.Responses),
	}
}

func newQuestionViews(qs []model.Question) []questionView {
	out := make([]questionView, 0, len(qs))
	for i := range qs {
		out = append(out, newQuestionView(&qs[i]))
	}
	return out
}

func newActivityView(a *model.UserActivity) activityView {
	v := activityView{
		UserQuestions:      newQuestionViews(a.UserQuestions),
		RespondedQuestions: make([]respondedView, 0, len(a.RespondedQuestions)),
	}
	for _, rq := range a.RespondedQuestions {
		v.RespondedQuestions = append(v.RespondedQuestions, respondedView{
			QuestionID: rq.Question.ID,
			Title:      rq.Question.Title,
			QueryText:  rq.Question.Body,
			Channel:    rq.Question.Channel,
			Author:     rq.Question.Author,
			Responses:  newResponseViews(rq.Responses),
			CreatedAt:  formatTime(rq.Question.CreatedAt),
			UpdatedAt:  formatTime(rq.Question.UpdatedAt),
		})
	}
	return v
}
