package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"delinquency-map/internal/domain"
	"delinquency-map/internal/integrations/paramstore"
)

const (
	defaultMaxHistory  = 20
	defaultMaxQuestion = 500
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// StateReadWriter persists the session to conversation correlation and the
// exchange log.
type StateReadWriter interface {
	GetSession(ctx context.Context, sessionID string) (domain.SessionMeta, error)
	GetHistory(ctx context.Context, sessionID string, limit int) ([]domain.Exchange, error)
	SaveCompletedExchange(ctx context.Context, sessionID, conversationID, question string, answer domain.NormalizedAnswer, turns int) error
}

type AskService struct {
	params          ParamGetter
	genie           GenieClient
	state           StateReadWriter
	paramPrefix     string
	maxHistoryItems int
	maxQuestionLen  int

	cacheMu     sync.RWMutex
	cacheLoaded bool
	spaceID     string
}

type AskInput struct {
	Question  string
	SessionID string
}

type AskOutput struct {
	SessionID      string
	ConversationID string
	Answer         domain.NormalizedAnswer
}

func NewAskService(p ParamGetter, genie GenieClient, s StateReadWriter, paramPrefix string, maxHistoryItems, maxQuestionLen int) (*AskService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if genie == nil {
		return nil, errors.New("usecase: genie client must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: state store must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if maxHistoryItems <= 0 {
		maxHistoryItems = defaultMaxHistory
	}
	if maxQuestionLen <= 0 {
		maxQuestionLen = defaultMaxQuestion
	}
	return &AskService{
		params:          p,
		genie:           genie,
		state:           s,
		paramPrefix:     paramPrefix,
		maxHistoryItems: maxHistoryItems,
		maxQuestionLen:  maxQuestionLen,
	}, nil
}

// Ask relays question to the Genie space within the session's conversation.
// Genie faults are not errors: they come back as a message answer with the
// session's previous conversation id, and nothing is stored. A failure to
// store a completed exchange is logged and the answer is still returned.
func (s *AskService) Ask(ctx context.Context, in AskInput) (AskOutput, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return AskOutput{}, newError(ErrorInvalidInput, "empty_question", nil)
	}
	if utf8.RuneCountInString(question) > s.maxQuestionLen {
		return AskOutput{}, newError(ErrorInvalidInput, "question_too_long", nil)
	}
	if err := s.ensureConfig(ctx); err != nil {
		return AskOutput{}, newError(ErrorInternal, "ssm_load_error", err)
	}

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}

	meta, err := s.state.GetSession(ctx, sessionID)
	if err != nil {
		return AskOutput{}, newError(ErrorInternal, "state_read_error", err)
	}

	answer, conversationID, fault := reduceResponse(ctx, s.genie, s.spaceID, meta.ConversationID, question)
	if fault != nil {
		slog.WarnContext(ctx, "genie exchange failed", "session_id", sessionID, "conversation_id", meta.ConversationID, "err", fault)
		return AskOutput{SessionID: sessionID, ConversationID: conversationID, Answer: answer}, nil
	}

	// The Genie turn already happened; losing its record must not lose the answer.
	if err := s.state.SaveCompletedExchange(ctx, sessionID, conversationID, question, answer, meta.Turns+1); err != nil {
		slog.ErrorContext(ctx, "failed to store exchange", "session_id", sessionID, "conversation_id", conversationID, "err", err)
	}

	return AskOutput{
		SessionID:      sessionID,
		ConversationID: conversationID,
		Answer:         answer,
	}, nil
}

// History returns the latest exchanges of a session, oldest first.
func (s *AskService) History(ctx context.Context, sessionID string) ([]domain.Exchange, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, newError(ErrorInvalidInput, "missing_session_id", nil)
	}
	exchanges, err := s.state.GetHistory(ctx, sessionID, s.maxHistoryItems)
	if err != nil {
		return nil, newError(ErrorInternal, "state_read_error", err)
	}
	return exchanges, nil
}

func (s *AskService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	spaceID, err := paramstore.GetString(ctx, s.params, s.paramPrefix+"/config/genie_space_id")
	if err != nil {
		return err
	}
	s.spaceID = spaceID
	s.cacheLoaded = true
	return nil
}

var newUUID = func() string {
	return uuid.NewString()
}
