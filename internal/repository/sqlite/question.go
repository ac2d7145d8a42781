package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/consulthub/internal/apperror"
	"github.com/sakif/consulthub/internal/model"
	"github.com/sakif/consulthub/internal/repository"
)

var _ repository.QuestionRepository = (*DB)(nil)

// questionSelect joins the author so callers get a username, not just an id.
const questionSelect = `SELECT q.id, q.title, q.title_lower, q.body, q.channel,
	q.author_id, u.username, q.created_at, q.updated_at
	FROM questions q JOIN users u ON u.id = q.author_id`

const responseSelect = `SELECT r.id, r.question_id, r.content, r.author_id,
	u.username, r.created_at, r.updated_at
	FROM responses r JOIN users u ON u.id = r.author_id`

func scanQuestion(s rowScanner) (*model.Question, error) {
	var q model.Question
	err := s.Scan(
		&q.ID,
		&q.Title,
		&q.TitleLower,
		&q.Body,
		&q.Channel,
		&q.AuthorID,
		&q.Author,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func scanResponse(s rowScanner) (*model.Response, error) {
	var r model.Response
	err := s.Scan(
		&r.ID,
		&r.QuestionID,
		&r.Content,
		&r.AuthorID,
		&r.Author,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateQuestion inserts a question. The caller supplies the ID.
// TitleLower is derived from Title when left empty.
func (db *DB) CreateQuestion(ctx context.Context, q *model.Question) error {
	now := time.Now().UTC()
	q.CreatedAt = now
	q.UpdatedAt = now
	if q.TitleLower == "" {
		q.TitleLower = strings.ToLower(q.Title)
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO questions (id, title, title_lower, body, channel, author_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID,
		q.Title,
		q.TitleLower,
		q.Body,
		q.Channel,
		q.AuthorID,
		q.CreatedAt,
		q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating question: %w", err)
	}

	q.Responses = []model.Response{}
	return nil
}

// GetQuestionByID finds a question by id within channel. AllChannels
// disables the channel filter.
func (db *DB) GetQuestionByID(ctx context.Context, channel, id string) (*model.Question, error) {
	where, args := channelClause("q.id = ?", channel, id)
	q, err := db.getQuestion(ctx, where, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("question", id)
		}
		return nil, fmt.Errorf("sqlite: getting question %s: %w", id, err)
	}
	return q, nil
}

// GetQuestionByTitle finds the first question in channel whose normalized
// title equals titleLower.
func (db *DB) GetQuestionByTitle(ctx context.Context, channel, titleLower string) (*model.Question, error) {
	where, args := channelClause("q.title_lower = ?", channel, strings.ToLower(titleLower))
	q, err := db.getQuestion(ctx, where, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFoundMessage("question not found with title " + titleLower)
		}
		return nil, fmt.Errorf("sqlite: getting question by title: %w", err)
	}
	return q, nil
}

// getQuestion returns sql.ErrNoRows unwrapped so callers can build their
// own NotFound error.
func (db *DB) getQuestion(ctx context.Context, where string, args ...any) (*model.Question, error) {
	row := db.conn.QueryRowContext(ctx,
		questionSelect+` WHERE `+where+` ORDER BY q.rowid LIMIT 1`,
		args...,
	)
	q, err := scanQuestion(row)
	if err != nil {
		return nil, err
	}

	qs := []model.Question{*q}
	if err := db.attachResponses(ctx, qs, ""); err != nil {
		return nil, err
	}
	return &qs[0], nil
}

// ListQuestions returns one window of a channel feed in insertion order.
//
// The caller asks for page_size+1 rows to learn whether a next page exists;
// this method applies Limit exactly as given.
func (db *DB) ListQuestions(ctx context.Context, opts repository.ListOptions) ([]model.Question, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 11
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	where, args := channelClause("1 = 1", opts.Channel)
	args = append(args, limit, offset)

	questions, err := db.queryQuestions(ctx,
		questionSelect+` WHERE `+where+` ORDER BY q.rowid LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing questions: %w", err)
	}

	if err := db.attachResponses(ctx, questions, ""); err != nil {
		return nil, err
	}
	return questions, nil
}

// queryQuestions runs a question SELECT and closes its rows before
// returning, so the single pooled connection is free for the next query.
func (db *DB) queryQuestions(ctx context.Context, query string, args ...any) ([]model.Question, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := make([]model.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning question row: %w", err)
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating question rows: %w", err)
	}
	return questions, nil
}

// attachResponses loads responses for every question in one IN (...) query
// and fills each Responses slice in creation order. A non-empty authorID
// keeps only that author's responses.
func (db *DB) attachResponses(ctx context.Context, questions []model.Question, authorID string) error {
	if len(questions) == 0 {
		return nil
	}

	index := make(map[string]int, len(questions))
	args := make([]any, 0, len(questions)+1)
	for i := range questions {
		questions[i].Responses = []model.Response{}
		index[questions[i].ID] = i
		args = append(args, questions[i].ID)
	}

	query := responseSelect + ` WHERE r.question_id IN (` + placeholders(len(questions)) + `)`
	if authorID != "" {
		query += ` AND r.author_id = ?`
		args = append(args, authorID)
	}
	query += ` ORDER BY r.rowid`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: loading responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return fmt.Errorf("sqlite: scanning response row: %w", err)
		}
		if i, ok := index[r.QuestionID]; ok {
			questions[i].Responses = append(questions[i].Responses, *r)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating response rows: %w", err)
	}
	return nil
}

// AddResponse appends resp to the question and bumps its updated_at.
//
// TRANSACTION:
// Both statements commit together or not at all. The UPDATE runs first so
// an unknown question id is detected before anything is inserted.
func (db *DB) AddResponse(ctx context.Context, questionID string, resp *model.Response) error {
	now := time.Now().UTC()
	resp.QuestionID = questionID
	resp.CreatedAt = now
	resp.UpdatedAt = now

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE questions SET updated_at = ? WHERE id = ?`,
		now, questionID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: touching question %s: %w", questionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("question", questionID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO responses (id, question_id, content, author_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		resp.ID,
		resp.QuestionID,
		resp.Content,
		resp.AuthorID,
		resp.CreatedAt,
		resp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting response: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing response: %w", err)
	}
	return nil
}

// GetResponse returns a response together with its parent question.
func (db *DB) GetResponse(ctx context.Context, responseID string) (*model.Question, *model.Response, error) {
	row := db.conn.QueryRowContext(ctx,
		responseSelect+` WHERE r.id = ?`,
		responseID,
	)
	resp, err := scanResponse(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, apperror.NotFound("response", responseID)
		}
		return nil, nil, fmt.Errorf("sqlite: getting response %s: %w", responseID, err)
	}

	q, err := db.GetQuestionByID(ctx, repository.AllChannels, resp.QuestionID)
	if err != nil {
		return nil, nil, err
	}
	return q, resp, nil
}

// UserActivity runs the per-user cross-query within channel.
//
// TWO DISJOINT SETS:
//   - UserQuestions: questions the user authored, with all responses
//   - RespondedQuestions: questions by someone else that the user answered,
//     narrowed to the user's own responses
//
// A question the user both asked and answered appears only in the first set.
func (db *DB) UserActivity(ctx context.Context, userID, channel string, filter repository.ActivityFilter) (*model.UserActivity, error) {
	extra, extraArgs := activityFilterClause(filter)

	ownWhere, ownArgs := channelClause("q.author_id = ?"+extra, channel, append([]any{userID}, extraArgs...)...)
	own, err := db.queryQuestions(ctx,
		questionSelect+` WHERE `+ownWhere+` ORDER BY q.rowid`,
		ownArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing questions by user %s: %w", userID, err)
	}
	if err := db.attachResponses(ctx, own, ""); err != nil {
		return nil, err
	}

	respondedWhere, respondedArgs := channelClause(
		`q.author_id != ? AND EXISTS (
			SELECT 1 FROM responses r WHERE r.question_id = q.id AND r.author_id = ?
		)`+extra,
		channel,
		append([]any{userID, userID}, extraArgs...)...,
	)
	responded, err := db.queryQuestions(ctx,
		questionSelect+` WHERE `+respondedWhere+` ORDER BY q.rowid`,
		respondedArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing questions answered by user %s: %w", userID, err)
	}
	if err := db.attachResponses(ctx, responded, userID); err != nil {
		return nil, err
	}

	activity := &model.UserActivity{
		UserQuestions:      own,
		RespondedQuestions: make([]model.RespondedQuestion, 0, len(responded)),
	}
	for _, q := range responded {
		mine := q.Responses
		q.Responses = nil
		activity.RespondedQuestions = append(activity.RespondedQuestions, model.RespondedQuestion{
			Question:  q,
			Responses: mine,
		})
	}
	return activity, nil
}

// channelClause appends a channel filter unless channel is AllChannels or
// empty. args are the arguments of cond, in order.
func channelClause(cond, channel string, args ...any) (string, []any) {
	if channel == "" || channel == repository.AllChannels {
		return cond, args
	}
	return cond + " AND q.channel = ?", append(args, channel)
}

func activityFilterClause(f repository.ActivityFilter) (string, []any) {
	switch {
	case f.QuestionID != "":
		return " AND q.id = ?", []any{f.QuestionID}
	case f.TitleLower != "":
		return " AND q.title_lower = ?", []any{strings.ToLower(f.TitleLower)}
	default:
		return "", nil
	}
}
