package domain

import "fmt"

type AnswerKind string

const (
	AnswerMessage AnswerKind = "message"
	AnswerTable   AnswerKind = "table"
)

// NoResultText is the message produced when a response carries nothing
// displayable.
const NoResultText = "Sem resultados retornados."

// NormalizedAnswer is either a message (Kind == AnswerMessage, Text set) or a
// tabular answer with optional provenance.
type NormalizedAnswer struct {
	Kind           AnswerKind `json:"kind"`
	Text           string     `json:"text,omitempty"`
	Columns        []string   `json:"columns,omitempty"`
	Rows           [][]any    `json:"rows,omitempty"`
	Description    string     `json:"description,omitempty"`
	GeneratedQuery string     `json:"generatedQuery,omitempty"`
}

func MessageAnswer(text string) NormalizedAnswer {
	return NormalizedAnswer{Kind: AnswerMessage, Text: text}
}

func TableAnswer(result TabularResult, description, generatedQuery string) NormalizedAnswer {
	return NormalizedAnswer{
		Kind:           AnswerTable,
		Columns:        result.Names(),
		Rows:           result.Rows(),
		Description:    description,
		GeneratedQuery: generatedQuery,
	}
}

// Summary is the short text persisted with an exchange.
func (a NormalizedAnswer) Summary() string {
	if a.Kind == AnswerMessage {
		return a.Text
	}
	if a.Description != "" {
		return fmt.Sprintf("%s (%d linhas)", a.Description, len(a.Rows))
	}
	return fmt.Sprintf("%d linhas", len(a.Rows))
}
