package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"delinquency-map/internal/domain"
)

const (
	skPrefixExchange = "EXCH#"
	skMeta           = "META#"
	ttlDuration      = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client keeps session state in a single DynamoDB table: one META# item per
// session holding the assistant conversation id, and one EXCH# item per
// completed exchange.
type Client struct {
	api       dynamodbAPI
	tableName string
}

func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// exchangeSK returns the sort key for an exchange created at ts.
func exchangeSK(ts time.Time) string {
	return skPrefixExchange + ts.UTC().Format(time.RFC3339Nano)
}

func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// GetSession returns the session metadata, or a zero SessionMeta (empty
// ConversationID) when the session has never completed an exchange.
func (c *Client) GetSession(ctx context.Context, sessionID string) (domain.SessionMeta, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.SessionMeta{}, fmt.Errorf("repository: GetSession get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.SessionMeta{SessionID: sessionID}, nil
	}

	meta, err := itemToMeta(out.Item)
	if err != nil {
		return domain.SessionMeta{}, fmt.Errorf("repository: GetSession decode: %w", err)
	}
	return meta, nil
}

// GetHistory returns the most recent exchanges of a session in chronological
// order.
func (c *Client) GetHistory(ctx context.Context, sessionID string, limit int) ([]domain.Exchange, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixExchange},
		},
		// Newest first so LIMIT keeps the latest exchanges.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: GetHistory query: %w", err)
	}

	exchanges := make([]domain.Exchange, 0, len(out.Items))
	for _, item := range out.Items {
		ex, err := itemToExchange(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetHistory unmarshal: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}
	return exchanges, nil
}

// SaveTurn writes the exchange and the updated session metadata in one
// transaction.
func (c *Client) SaveTurn(ctx context.Context, ex domain.Exchange, meta domain.SessionMeta) error {
	if ex.PK == "" || ex.SK == "" {
		return errors.New("repository: SaveTurn: exchange PK and SK are required")
	}
	if meta.PK == "" || meta.SK == "" {
		return errors.New("repository: SaveTurn: meta PK and SK are required")
	}

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                exchangeItem(ex),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      metaItem(meta),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveTurn: %w", err)
	}
	return nil
}

// SaveCompletedExchange records a successful exchange and the conversation id
// the session must reuse.
func (c *Client) SaveCompletedExchange(ctx context.Context, sessionID, conversationID, question string, answer domain.NormalizedAnswer, turns int) error {
	ex := NewExchange(sessionID, conversationID, question, answer)
	meta := NewSessionMeta(sessionID, conversationID, turns)
	if err := c.SaveTurn(ctx, ex, meta); err != nil {
		return fmt.Errorf("repository: SaveCompletedExchange: %w", err)
	}
	return nil
}

// NewExchange constructs an Exchange with PK/SK/TTL set from sessionID and
// the current time.
func NewExchange(sessionID, conversationID, question string, answer domain.NormalizedAnswer) domain.Exchange {
	now := time.Now().UTC()
	return domain.Exchange{
		PK:             sessionPK(sessionID),
		SK:             exchangeSK(now),
		SessionID:      sessionID,
		ConversationID: conversationID,
		Question:       question,
		AnswerKind:     answer.Kind,
		Answer:         answer.Summary(),
		CreatedAt:      now.Format(time.RFC3339),
		TTL:            ttlValue(),
	}
}

func NewSessionMeta(sessionID, conversationID string, turns int) domain.SessionMeta {
	return domain.SessionMeta{
		PK:             sessionPK(sessionID),
		SK:             skMeta,
		SessionID:      sessionID,
		ConversationID: conversationID,
		LastActivity:   time.Now().UTC().Format(time.RFC3339),
		Turns:          turns,
		TTL:            ttlValue(),
	}
}

func itemToExchange(item map[string]types.AttributeValue) (domain.Exchange, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Exchange{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Exchange{}, err
	}
	question, err := strAttr(item, "question")
	if err != nil {
		return domain.Exchange{}, err
	}
	answer, _ := strAttr(item, "answer")
	kind, _ := strAttr(item, "answerKind")
	sessionID, _ := strAttr(item, "sessionId")
	conversationID, _ := strAttr(item, "conversationId")
	createdAt, _ := strAttr(item, "createdAt")

	return domain.Exchange{
		PK:             pk,
		SK:             sk,
		SessionID:      sessionID,
		ConversationID: conversationID,
		Question:       question,
		AnswerKind:     domain.AnswerKind(kind),
		Answer:         answer,
		CreatedAt:      createdAt,
	}, nil
}

func itemToMeta(item map[string]types.AttributeValue) (domain.SessionMeta, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.SessionMeta{}, err
	}
	conversationID, err := strAttr(item, "conversationId")
	if err != nil {
		return domain.SessionMeta{}, err
	}
	turns, err := intAttr(item, "turns")
	if err != nil {
		return domain.SessionMeta{}, err
	}
	sessionID, _ := strAttr(item, "sessionId")
	lastActivity, _ := strAttr(item, "lastActivity")
	return domain.SessionMeta{
		PK:             pk,
		SK:             skMeta,
		SessionID:      sessionID,
		ConversationID: conversationID,
		LastActivity:   lastActivity,
		Turns:          turns,
	}, nil
}

func exchangeItem(ex domain.Exchange) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: ex.PK},
		"SK":             &types.AttributeValueMemberS{Value: ex.SK},
		"sessionId":      &types.AttributeValueMemberS{Value: ex.SessionID},
		"conversationId": &types.AttributeValueMemberS{Value: ex.ConversationID},
		"question":       &types.AttributeValueMemberS{Value: ex.Question},
		"answerKind":     &types.AttributeValueMemberS{Value: string(ex.AnswerKind)},
		"answer":         &types.AttributeValueMemberS{Value: ex.Answer},
		"createdAt":      &types.AttributeValueMemberS{Value: ex.CreatedAt},
		"ttl":            &types.AttributeValueMemberN{Value: strconv.FormatInt(ex.TTL, 10)},
	}
}

func metaItem(meta domain.SessionMeta) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: meta.PK},
		"SK":             &types.AttributeValueMemberS{Value: meta.SK},
		"sessionId":      &types.AttributeValueMemberS{Value: meta.SessionID},
		"conversationId": &types.AttributeValueMemberS{Value: meta.ConversationID},
		"lastActivity":   &types.AttributeValueMemberS{Value: meta.LastActivity},
		"turns":          &types.AttributeValueMemberN{Value: strconv.Itoa(meta.Turns)},
		"ttl":            &types.AttributeValueMemberN{Value: strconv.FormatInt(meta.TTL, 10)},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
