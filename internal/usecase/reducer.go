package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"delinquency-map/internal/domain"
)

// GenieClient is the conversational analytics collaborator.
type GenieClient interface {
	StartConversation(ctx context.Context, spaceID, question string) (domain.AssistantMessage, error)
	ContinueConversation(ctx context.Context, spaceID, conversationID, question string) (domain.AssistantMessage, error)
	GetQueryResult(ctx context.Context, spaceID, conversationID, messageID string) (domain.QueryResultRef, error)
	GetStatement(ctx context.Context, statementID string) (domain.TabularResult, error)
}

const genieErrorPrefix = "Erro consultando Genie: "

// reduceResponse asks the question within conversationID (a new conversation
// when empty) and reduces the reply to one NormalizedAnswer.
//
// It never fails: a fault anywhere in the chain becomes a message answer,
// the returned conversation id falls back to the one passed in, and the fault
// is returned separately so the caller can skip persisting the exchange.
func reduceResponse(ctx context.Context, genie GenieClient, spaceID, conversationID, question string) (domain.NormalizedAnswer, string, error) {
	// Once started the chain completes or fails as a unit; the client's own
	// wait timeout bounds it.
	ctx = context.WithoutCancel(ctx)

	answer, nextID, err := runChain(ctx, genie, spaceID, conversationID, question)
	if err != nil {
		return domain.MessageAnswer(genieErrorPrefix + err.Error()), conversationID, err
	}
	if nextID == "" {
		nextID = conversationID
	}
	return answer, nextID, nil
}

func runChain(ctx context.Context, genie GenieClient, spaceID, conversationID, question string) (domain.NormalizedAnswer, string, error) {
	var (
		msg domain.AssistantMessage
		err error
	)
	if conversationID == "" {
		msg, err = genie.StartConversation(ctx, spaceID, question)
	} else {
		msg, err = genie.ContinueConversation(ctx, spaceID, conversationID, question)
	}
	if err != nil {
		return domain.NormalizedAnswer{}, "", err
	}

	for _, att := range msg.Attachments {
		if text, ok := att.(*domain.TextAttachment); ok && strings.TrimSpace(text.Content) != "" {
			return domain.MessageAnswer(text.Content), msg.ConversationID, nil
		}
	}

	// The first query attachment backed by an executed statement wins.
	for _, att := range msg.Attachments {
		query, ok := att.(*domain.QueryAttachment)
		if !ok {
			continue
		}
		answer, found, err := tableAnswer(ctx, genie, spaceID, msg, query)
		if err != nil {
			return domain.NormalizedAnswer{}, "", err
		}
		if found {
			return answer, msg.ConversationID, nil
		}
	}

	return domain.MessageAnswer(domain.NoResultText), msg.ConversationID, nil
}

// tableAnswer follows a query attachment to its statement result. found is
// false when the message carries no executed statement for it.
func tableAnswer(ctx context.Context, genie GenieClient, spaceID string, msg domain.AssistantMessage, query *domain.QueryAttachment) (domain.NormalizedAnswer, bool, error) {
	if msg.ConversationID == "" || msg.ID == "" {
		return domain.NormalizedAnswer{}, false, errors.New("resposta sem identificadores de conversa")
	}
	ref, err := genie.GetQueryResult(ctx, spaceID, msg.ConversationID, msg.ID)
	if err != nil {
		return domain.NormalizedAnswer{}, false, err
	}

	statementID := ref.StatementID
	if statementID == "" {
		statementID = query.StatementID
	}
	if statementID == "" {
		return domain.NormalizedAnswer{}, false, nil
	}

	description := query.Description
	if description == "" {
		description = query.Title
	}
	result, err := genie.GetStatement(ctx, statementID)
	if err != nil {
		return domain.NormalizedAnswer{}, false, fmt.Errorf("statement %s: %w", statementID, err)
	}
	return domain.TableAnswer(result, description, query.Query), true, nil
}
