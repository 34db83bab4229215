package schema

import (
	"fmt"

	jsonschema "github.com/swaggest/jsonschema-go"

	"github.com/quayside/coxswain/src/protocol"
)

// BuildAnswersSchema describes the answers object expected for a tool-input
// request: one property per question id, an enum when the question carries
// options, an array when it is multi-select. Every question is required.
func BuildAnswersSchema(questions []protocol.ToolInputQuestion) *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, len(questions))
	required := make([]string, 0, len(questions))

	for _, q := range questions {
		var item *jsonschema.Schema
		if len(q.Options) > 0 {
			values := make([]string, 0, len(q.Options))
			for _, opt := range q.Options {
				values = append(values, opt.Value)
			}
			item = CreateStringSchemaEnum(q.Question, values)
		} else {
			item = CreateStringSchema(q.Question)
		}
		if q.MultiSelect {
			item = CreateArraySchema(q.Question, item)
		}
		properties[q.ID] = item
		required = append(required, q.ID)
	}

	return CreateObjectSchema(properties, required)
}

// ValidateAnswers checks a collected answers map against the questions:
// every question must be answered, single-select questions take exactly one
// value, option questions only accept listed option values, and answers for
// unknown question ids are rejected.
func ValidateAnswers(questions []protocol.ToolInputQuestion, answers map[string][]string) error {
	byID := make(map[string]protocol.ToolInputQuestion, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	for id := range answers {
		if _, ok := byID[id]; !ok {
			return fmt.Errorf("answer for unknown question %q", id)
		}
	}

	for _, q := range questions {
		values := answers[q.ID]
		if len(values) == 0 || (len(values) == 1 && values[0] == "") {
			return fmt.Errorf("question %q is unanswered", q.ID)
		}
		if !q.MultiSelect && len(values) > 1 {
			return fmt.Errorf("question %q takes a single answer, got %d", q.ID, len(values))
		}
		if len(q.Options) == 0 {
			continue
		}
		allowed := make(map[string]struct{}, len(q.Options))
		for _, opt := range q.Options {
			allowed[opt.Value] = struct{}{}
		}
		for _, v := range values {
			if _, ok := allowed[v]; !ok {
				return fmt.Errorf("question %q does not allow %q", q.ID, v)
			}
		}
	}
	return nil
}
