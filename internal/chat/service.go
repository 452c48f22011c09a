package chat

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/minchat/minchat/internal/ai"
	"github.com/minchat/minchat/internal/common"
	"github.com/minchat/minchat/internal/retry"
)

// Liveness reports whether the client that started a send still wants the
// answer. The transport owns it; the coordinator only queries it, once per
// state boundary, because disconnection is asynchronous and can land between
// any two steps.
type Liveness func() bool

// AlwaysLive is the liveness capability for callers with no connection to
// lose, such as the async job worker.
func AlwaysLive() bool { return true }

type Options struct {
	// ProviderTimeout is the wall-clock deadline per provider attempt.
	ProviderTimeout time.Duration
	// RetryMax retries on upstream faults after the first attempt.
	RetryMax int
	// RetryBaseDelay is scaled by the attempt number between retries.
	RetryBaseDelay time.Duration
}

func (o *Options) normalize() {
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = 12 * time.Second
	}
	if o.RetryMax < 0 {
		o.RetryMax = 2
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 500 * time.Millisecond
	}
}

type Service struct {
	repo     *Repo
	provider ai.Provider
	opts     Options
	log      *zap.Logger
}

func NewService(repo *Repo, provider ai.Provider, log *zap.Logger, opts Options) *Service {
	opts.normalize()
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, provider: provider, opts: opts, log: log}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// CreateConversation derives the title from a durable count so numbering
// survives process restart. Two racing creates can share a title; titles are
// display strings, not keys.
func (s *Service) CreateConversation(ctx context.Context) (*Conversation, error) {
	n, err := s.repo.CountConversations(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	conv := &Conversation{
		ID:    id,
		Title: fmt.Sprintf("Conversation #%d", n+1),
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, storageErr(err)
	}
	return conv, nil
}

func (s *Service) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context) ([]Conversation, error) {
	convs, err := s.repo.ListConversations(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	return convs, nil
}

func (s *Service) DeleteConversation(ctx context.Context, id string) error {
	return storageErr(s.repo.DeleteConversation(ctx, id))
}

// Send runs the message-send state machine:
//
//	Idle -> UserMsgPersisted -> HistoryFetched -> ProviderInvoked
//	     -> AssistantMsgPersisted -> Responded
//
// with abort-and-rollback reachable from every non-terminal state. Liveness
// is re-checked after every suspension point. Every failure and abort path
// deletes the just-created user message before returning, with one accepted
// exception: an abort detected after the assistant message was persisted
// keeps both messages and only suppresses the response.
//
// Exactly one of (userMsg+reply, error) comes back; ErrAborted means the
// caller must not write anything to the connection.
func (s *Service) Send(ctx context.Context, conversationID, content string, live Liveness) (*Message, *Message, error) {
	if err := validateContent(content); err != nil {
		return nil, nil, err
	}
	if _, err := s.repo.GetConversation(ctx, conversationID); err != nil {
		return nil, nil, storageErr(err)
	}

	// Idle: nothing written yet, a dead client costs nothing.
	if !s.alive(ctx, live) {
		return nil, nil, ErrAborted
	}

	userMsg := &Message{
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        content,
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return nil, nil, storageErr(err)
	}

	// UserMsgPersisted
	if !s.alive(ctx, live) {
		s.rollback(ctx, userMsg)
		return nil, nil, ErrAborted
	}

	history, err := s.repo.ListMessagesAsc(ctx, conversationID)
	if err != nil {
		s.rollback(ctx, userMsg)
		return nil, nil, storageErr(err)
	}
	providerMsgs := make([]ai.Message, 0, len(history))
	for _, m := range history {
		providerMsgs = append(providerMsgs, ai.Message{Role: m.Role, Content: m.Content})
	}

	// HistoryFetched
	if !s.alive(ctx, live) {
		s.rollback(ctx, userMsg)
		return nil, nil, ErrAborted
	}

	var reply string
	err = retry.Do(ctx, retry.Config{
		MaxRetries:  s.opts.RetryMax,
		BaseDelay:   s.opts.RetryBaseDelay,
		ShouldRetry: ai.Retryable,
	}, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
		defer cancel()
		out, err := s.provider.Complete(attemptCtx, providerMsgs)
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	if err != nil {
		s.rollback(ctx, userMsg)
		if errors.Is(err, context.Canceled) || ai.KindOf(err) == ai.KindAborted {
			return nil, nil, ErrAborted
		}
		if errors.Is(err, context.DeadlineExceeded) {
			// parent deadline, not the per-attempt one
			return nil, nil, ai.Errf(ai.KindTimeout, "completion deadline exceeded")
		}
		return nil, nil, err
	}

	// ProviderInvoked: the reply exists only in memory. A dead client here
	// means it is discarded, never persisted.
	if !s.alive(ctx, live) {
		s.rollback(ctx, userMsg)
		return nil, nil, ErrAborted
	}

	assistantMsg := &Message{
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Content:        reply,
	}
	if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
		s.rollback(ctx, userMsg)
		return nil, nil, storageErr(err)
	}

	// AssistantMsgPersisted: the exchange is durable. If the client vanished
	// in this last window, suppress the response but keep both messages; the
	// work completed legitimately.
	if !s.alive(ctx, live) {
		return nil, nil, ErrAborted
	}

	return userMsg, assistantMsg, nil
}

func (s *Service) alive(ctx context.Context, live Liveness) bool {
	return ctx.Err() == nil && live()
}

// rollback removes the user message of an abandoned send. It runs on a
// context detached from the (possibly already cancelled) request and never
// propagates: rollback must not fail the response path.
func (s *Service) rollback(ctx context.Context, userMsg *Message) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.repo.DeleteMessage(rctx, userMsg.ID); err != nil {
		s.log.Warn("user message rollback failed",
			zap.Uint64("messageId", userMsg.ID),
			zap.String("conversationId", userMsg.ConversationID),
			zap.Error(err))
	}
}

func validateContent(content string) error {
	n := utf8.RuneCountInString(content)
	if n < MinContentLen {
		return &ValidationError{Reason: "content must not be empty"}
	}
	if n > MaxContentLen {
		return &ValidationError{Reason: fmt.Sprintf("content exceeds %d characters", MaxContentLen)}
	}
	return nil
}

// Page is one window of a conversation's messages in chronological order,
// with opaque cursors for both directions.
type Page struct {
	Messages   []Message
	PrevCursor string
	NextCursor string
}

// ConversationMessages returns the newest page when cursorStr is empty.
// NextCursor continues toward older messages, PrevCursor toward newer ones.
func (s *Service) ConversationMessages(ctx context.Context, conversationID, cursorStr string, limit int) (*Conversation, *Page, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, storageErr(err)
	}

	var (
		rows     []Message
		haveMore bool
		dir      = dirNext
	)
	if cursorStr == "" {
		rows, err = s.repo.ListMessagesBefore(ctx, conversationID, limit+1, nil, 0)
	} else {
		cur, cErr := decodeCursor(cursorStr, conversationID)
		if cErr != nil {
			return nil, nil, cErr
		}
		dir = cur.Dir
		anchorAt := cur.at()
		switch dir {
		case dirNext:
			rows, err = s.repo.ListMessagesBefore(ctx, conversationID, limit+1, &anchorAt, cur.ID)
		case dirPrev:
			rows, err = s.repo.ListMessagesAfter(ctx, conversationID, limit+1, anchorAt, cur.ID)
		}
	}
	if err != nil {
		return nil, nil, storageErr(err)
	}
	if len(rows) > limit {
		rows = rows[:limit]
		haveMore = true
	}

	page := &Page{Messages: rows}
	if dir == dirNext {
		// rows are newest-first; present them chronologically
		reverse(page.Messages)
	}
	if len(page.Messages) == 0 {
		return conv, page, nil
	}

	oldest := page.Messages[0]
	newest := page.Messages[len(page.Messages)-1]

	switch {
	case cursorStr == "":
		// newest page: nothing newer exists yet
		if haveMore {
			page.NextCursor = encodeCursor(conversationID, oldest.CreatedAt, oldest.ID, dirNext)
		}
	case dir == dirNext:
		page.PrevCursor = encodeCursor(conversationID, newest.CreatedAt, newest.ID, dirPrev)
		if haveMore {
			page.NextCursor = encodeCursor(conversationID, oldest.CreatedAt, oldest.ID, dirNext)
		}
	case dir == dirPrev:
		page.NextCursor = encodeCursor(conversationID, oldest.CreatedAt, oldest.ID, dirNext)
		if haveMore {
			page.PrevCursor = encodeCursor(conversationID, newest.CreatedAt, newest.ID, dirPrev)
		}
	}
	return conv, page, nil
}

func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// Async jobs

// EnqueueSend records a job row for a worker to pick up. The user message is
// not persisted here; the worker's Send call owns the whole lifecycle.
func (s *Service) EnqueueSend(ctx context.Context, conversationID, content string) (*Job, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetConversation(ctx, conversationID); err != nil {
		return nil, storageErr(err)
	}
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:             id,
		ConversationID: conversationID,
		Prompt:         content,
		Status:         JobQueued,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, storageErr(err)
	}
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	return job, nil
}

// RunJob executes a queued send job to completion. Job-level failures are
// recorded on the row and return nil; only infrastructure errors (the job
// row itself unreadable or unwritable) propagate so the consumer can decide
// to redeliver.
func (s *Service) RunJob(ctx context.Context, jobID string) error {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("job not found, dropping", zap.String("jobId", jobID))
			return nil
		}
		return err
	}
	if job.Status == JobSucceeded || job.Status == JobFailed {
		// redelivered terminal job
		return nil
	}
	claimed, err := s.repo.MarkJobRunning(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		// another delivery claimed this job first. Running it again could
		// persist a duplicate exchange; leave the claimed run's outcome alone.
		s.log.Warn("job already claimed, skipping",
			zap.String("jobId", jobID),
			zap.String("status", string(job.Status)))
		return nil
	}

	_, assistantMsg, err := s.Send(ctx, job.ConversationID, job.Prompt, AlwaysLive)
	if err != nil {
		s.log.Info("job send failed",
			zap.String("jobId", jobID),
			zap.String("conversationId", job.ConversationID),
			zap.Error(err))
		return s.repo.MarkJobFailed(ctx, jobID, err.Error())
	}
	return s.repo.MarkJobSucceeded(ctx, jobID, assistantMsg.ID)
}
