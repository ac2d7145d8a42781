package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/consulthub/internal/apperror"
	"github.com/sakif/consulthub/internal/auth"
	"github.com/sakif/consulthub/internal/model"
	"github.com/sakif/consulthub/internal/repository"
	"github.com/sakif/consulthub/internal/service"
)

const msgActivity = "User questions and responses retrieved successfully"

// ChannelHandler serves the question feed, posting, responding and the
// per-user cross-queries. Every route sits behind RequireAuth.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRoot         → GET  /api/channel/
//   - HandleGeneral      → GET  /api/general
//   - HandleFeed         → GET  /api/channel/{channel}/
//   - HandlePost         → POST /api/channel/
//   - HandleRespond      → POST /api/channel/{channel}/{questionID}/response
//   - HandleQuestion     → GET  /api/channel/{channel}/questions/{idOrTitle}
//   - HandleMulti        → GET  /api/channel/{channel}/multi
//   - HandleActivity     → GET  /api/channel/{channel}/{username}/[{idOrTitle}]
//   - HandleResponse     → GET  /api/responses/{responseID}
type ChannelHandler struct {
	questions *service.QuestionService
}

func NewChannelHandler(questions *service.QuestionService) *ChannelHandler {
	return &ChannelHandler{questions: questions}
}

// feedPayload is the success envelope with pagination fields beside data.
type feedPayload struct {
	Status   string         `json:"status"`
	Message  string         `json:"message"`
	Data     []questionView `json:"data"`
	Page     int            `json:"page"`
	PrevPage *int           `json:"prev_page"`
	NextPage *int           `json:"next_page"`
}

// pageParams reads page and page_size from the query string. Absent
// values are zero, which service.NormalizePage turns into defaults.
func pageParams(r *http.Request) (page, size int, err error) {
	q := r.URL.Query()
	for _, p := range []struct {
		key string
		dst *int
	}{{"page", &page}, {"page_size", &size}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return 0, 0, apperror.ValidationFailed(p.key, "page or page_size must be numerals")
		}
		*p.dst = n
	}
	return page, size, nil
}

func (h *ChannelHandler) writeFeed(w http.ResponseWriter, r *http.Request, channel string) {
	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.questions.ListChannel(r.Context(), channel, page, size)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, feedPayload{
		Status:   statusSuccess,
		Message:  msgActivity,
		Data:     newQuestionViews(result.Items),
		Page:     result.Page,
		PrevPage: result.PrevPage,
		NextPage: result.NextPage,
	})
}

// HandleRoot lists every channel with ?all=true and otherwise redirects to
// the channel named by ?channel (general by default).
func (h *ChannelHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all")
	switch strings.ToLower(all) {
	case "true":
		h.writeFeed(w, r, repository.AllChannels)
	case "", "false":
		channel := r.URL.Query().Get("channel")
		if channel == "" {
			channel = model.GeneralChannel
		}
		redirectToChannel(w, r, channel)
	default:
		writeError(w, apperror.ValidationFailed("all", "Invalid all parameter"))
	}
}

// HandleGeneral is a shortcut to the general channel feed.
func (h *ChannelHandler) HandleGeneral(w http.ResponseWriter, r *http.Request) {
	redirectToChannel(w, r, model.GeneralChannel)
}

// redirectToChannel answers 302 to the channel feed, keeping pagination
// and any other query parameters.
func redirectToChannel(w http.ResponseWriter, r *http.Request, channel string) {
	q := r.URL.Query()
	q.Del("all")
	q.Del("channel")

	target := "/api/channel/" + url.PathEscape(channel) + "/"
	if enc := q.Encode(); enc != "" {
		target += "?" + enc
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleFeed returns one page of a channel.
func (h *ChannelHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	h.writeFeed(w, r, chi.URLParam(r, "channel"))
}

type questionRequest struct {
	Title     string `json:"title"`
	QueryText string `json:"query_text"`
}

type postedQuestion struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Channel string `json:"channel"`
}

type postPayload struct {
	Status   string         `json:"status"`
	Message  string         `json:"message"`
	Data     postedQuestion `json:"data"`
	MoreInfo string         `json:"more_info,omitempty"`
}

// HandlePost stores a question in the caller's field channel, or in
// general with ?general=true.
func (h *ChannelHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var general bool
	if g := r.URL.Query().Get("general"); g != "" {
		if strings.ToLower(g) != "true" {
			writeError(w, apperror.ValidationFailed("general", "Invalid value for generals query parameter"))
			return
		}
		general = true
	}

	b, err := readBody(r.Context(), r, questionSchema)
	if err != nil {
		writeError(w, err)
		return
	}
	if b.invalid["title"] || b.invalid["query_text"] {
		writeError(w, apperror.ValidationFailed("title", "Invalid query input"))
		return
	}

	var req questionRequest
	if err := b.decode(&req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.questions.PostQuestion(r.Context(), user, service.PostInput{
		Title:   req.Title,
		Body:    req.QueryText,
		General: general,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	q := result.Question
	writeJSON(w, http.StatusCreated, postPayload{
		Status:  statusSuccess,
		Message: "Query posted successfully",
		Data: postedQuestion{
			ID:      q.ID,
			Title:   q.Title,
			Content: q.Body,
			Channel: q.Channel,
		},
		MoreInfo: result.MoreInfo,
	})
}

type responseRequest struct {
	Content string `json:"content"`
}

type postedResponse struct {
	QuestionID string `json:"question_id"`
	ResponseID string `json:"response_id"`
	Question   string `json:"question"`
	Response   string `json:"response"`
}

// HandleRespond appends a response to a question in the channel.
func (h *ChannelHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	b, err := readBody(r.Context(), r, responseSchema)
	if err != nil {
		writeError(w, err)
		return
	}

	// A non-string content is reported the same as an empty one, after the
	// question id checks.
	var req responseRequest
	if !b.invalid["content"] {
		if err := b.decode(&req); err != nil {
			writeError(w, err)
			return
		}
	}

	result, err := h.questions.Respond(r.Context(), user,
		chi.URLParam(r, "channel"), chi.URLParam(r, "questionID"), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, success("Response Posted successfully", postedResponse{
		QuestionID: result.Question.ID,
		ResponseID: result.Response.ID,
		Question:   result.Question.Body,
		Response:   result.Response.Content,
	}))
}

// HandleQuestion returns one question by id or title.
func (h *ChannelHandler) HandleQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.questions.FindQuestion(r.Context(), chi.URLParam(r, "channel"), chi.URLParam(r, "idOrTitle"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, success(msgActivity, newQuestionView(q)))
}

// HandleMulti runs the cross-query for every ?name= given.
func (h *ChannelHandler) HandleMulti(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFromContext(r.Context())

	acts, err := h.questions.MultiActivity(r.Context(), caller, chi.URLParam(r, "channel"), r.URL.Query()["name"])
	if err != nil {
		writeError(w, err)
		return
	}

	data := make(map[string]activityView, len(acts))
	for name, act := range acts {
		data[name] = newActivityView(act)
	}
	writeJSON(w, http.StatusOK, success(msgActivity, data))
}

// HandleActivity runs the cross-query for one user, optionally narrowed to
// one question.
func (h *ChannelHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFromContext(r.Context())

	act, err := h.questions.Activity(r.Context(), caller,
		chi.URLParam(r, "channel"), chi.URLParam(r, "username"), chi.URLParam(r, "idOrTitle"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, success(msgActivity, newActivityView(act)))
}

type responseLookup struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	ResponseID string `json:"response_id"`
	Response   string `json:"response"`
	Responder  string `json:"responder"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// HandleResponse returns a single response with its question.
func (h *ChannelHandler) HandleResponse(w http.ResponseWriter, r *http.Request) {
	q, resp, err := h.questions.GetResponse(r.Context(), chi.URLParam(r, "responseID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, success("Responses retrieved successfully", responseLookup{
		QuestionID: q.ID,
		Question:   q.Body,
		ResponseID: resp.ID,
		Response:   resp.Content,
		Responder:  resp.Author,
		CreatedAt:  formatTime(resp.CreatedAt),
		UpdatedAt:  formatTime(resp.UpdatedAt),
	}))
}
