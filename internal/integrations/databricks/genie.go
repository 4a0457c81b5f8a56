package databricks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/databricks/databricks-sdk-go/retries"
	"github.com/databricks/databricks-sdk-go/service/dashboards"

	"delinquency-map/internal/domain"
)

// StartConversation opens a conversation with question and waits for the
// assistant's message to complete.
func (c *Client) StartConversation(ctx context.Context, spaceID, question string) (domain.AssistantMessage, error) {
	if strings.TrimSpace(spaceID) == "" {
		return domain.AssistantMessage{}, errors.New("databricks: space id must not be empty")
	}
	genie, _, err := c.workspace(ctx)
	if err != nil {
		return domain.AssistantMessage{}, err
	}
	msg, err := genie.StartConversationAndWait(ctx, dashboards.GenieStartConversationMessageRequest{
		SpaceId: spaceID,
		Content: question,
	}, retries.Timeout[dashboards.GenieMessage](c.waitTimeout))
	if err != nil {
		return domain.AssistantMessage{}, fmt.Errorf("databricks: start conversation: %w", statusError(err))
	}
	return completed(msg, "")
}

// ContinueConversation posts question to an existing conversation and waits
// for the reply.
func (c *Client) ContinueConversation(ctx context.Context, spaceID, conversationID, question string) (domain.AssistantMessage, error) {
	if strings.TrimSpace(spaceID) == "" {
		return domain.AssistantMessage{}, errors.New("databricks: space id must not be empty")
	}
	if strings.TrimSpace(conversationID) == "" {
		return domain.AssistantMessage{}, errors.New("databricks: conversation id must not be empty")
	}
	genie, _, err := c.workspace(ctx)
	if err != nil {
		return domain.AssistantMessage{}, err
	}
	msg, err := genie.CreateMessageAndWait(ctx, dashboards.GenieCreateConversationMessageRequest{
		SpaceId:        spaceID,
		ConversationId: conversationID,
		Content:        question,
	}, retries.Timeout[dashboards.GenieMessage](c.waitTimeout))
	if err != nil {
		return domain.AssistantMessage{}, fmt.Errorf("databricks: create message: %w", statusError(err))
	}
	return completed(msg, conversationID)
}

// GetQueryResult returns the statement reference behind a message's generated
// query. StatementID is empty when the message has no executed query.
func (c *Client) GetQueryResult(ctx context.Context, spaceID, conversationID, messageID string) (domain.QueryResultRef, error) {
	genie, _, err := c.workspace(ctx)
	if err != nil {
		return domain.QueryResultRef{}, err
	}
	resp, err := genie.GetMessageQueryResult(ctx, dashboards.GenieGetMessageQueryResultRequest{
		SpaceId:        spaceID,
		ConversationId: conversationID,
		MessageId:      messageID,
	})
	if err != nil {
		return domain.QueryResultRef{}, fmt.Errorf("databricks: get query result: %w", statusError(err))
	}
	if resp == nil || resp.StatementResponse == nil {
		return domain.QueryResultRef{}, nil
	}
	return domain.QueryResultRef{StatementID: resp.StatementResponse.StatementId}, nil
}

// completed checks the waiter's final message. conversationID fills in a
// reply that omits it.
func completed(msg *dashboards.GenieMessage, conversationID string) (domain.AssistantMessage, error) {
	if msg == nil {
		return domain.AssistantMessage{}, errors.New("databricks: empty assistant message")
	}
	id := messageID(msg)
	if msg.ConversationId == "" {
		msg.ConversationId = conversationID
	}
	if id == "" || msg.ConversationId == "" {
		return domain.AssistantMessage{}, errors.New("databricks: response carries no conversation or message id")
	}
	if msg.Status != dashboards.MessageStatusCompleted {
		reason := ""
		if msg.Error != nil {
			reason = msg.Error.Error
		}
		return domain.AssistantMessage{}, fmt.Errorf("databricks: message %s ended with status %s: %s", id, msg.Status, reason)
	}
	return toDomain(msg, id), nil
}

func messageID(m *dashboards.GenieMessage) string {
	if m.MessageId != "" {
		return m.MessageId
	}
	return m.Id
}

// toDomain decodes attachments into the tagged variant. Attachments carrying
// neither text nor a query are dropped.
func toDomain(m *dashboards.GenieMessage, id string) domain.AssistantMessage {
	out := domain.AssistantMessage{
		ID:             id,
		ConversationID: m.ConversationId,
		Status:         string(m.Status),
	}
	for _, a := range m.Attachments {
		switch {
		case a.Text != nil:
			out.Attachments = append(out.Attachments, &domain.TextAttachment{ID: a.AttachmentId, Content: a.Text.Content})
		case a.Query != nil:
			out.Attachments = append(out.Attachments, &domain.QueryAttachment{
				ID:          a.AttachmentId,
				Title:       a.Query.Title,
				Description: a.Query.Description,
				Query:       a.Query.Query,
				StatementID: a.Query.StatementId,
			})
		}
	}
	return out
}
