package domain

// Exchange is a single persisted question/answer turn of a session.
type Exchange struct {
	PK             string
	SK             string
	SessionID      string
	ConversationID string
	Question       string
	AnswerKind     AnswerKind
	Answer         string
	CreatedAt      string
	TTL            int64
}

// SessionMeta stores the conversation correlation identifier of a session.
type SessionMeta struct {
	PK             string
	SK             string
	SessionID      string
	ConversationID string
	LastActivity   string
	Turns          int
	TTL            int64
}
