package domain

// Attachment is one unit of an assistant response: *TextAttachment or
// *QueryAttachment.
type Attachment interface {
	attachment()
}

type TextAttachment struct {
	ID      string
	Content string
}

// QueryAttachment is a generated query. StatementID is only set when the
// service already reports the executed statement on the attachment.
type QueryAttachment struct {
	ID          string
	Title       string
	Description string
	Query       string
	StatementID string
}

func (*TextAttachment) attachment()  {}
func (*QueryAttachment) attachment() {}

// AssistantMessage is a completed assistant message.
type AssistantMessage struct {
	ID             string
	ConversationID string
	Status         string
	Attachments    []Attachment
}

// QueryResultRef points at the executed statement behind a query attachment.
type QueryResultRef struct {
	StatementID string
}
