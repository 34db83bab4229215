// Package schema builds JSON Schema definitions for tool-input requests.
//
// A tool-input request carries an ordered list of questions; this package
// turns them into an object schema describing the expected answers map and
// validates a concrete answers map against the questions before submission.
//
// Example usage:
//
//	import "github.com/quayside/coxswain/src/schema"
//
//	// Describe the expected answers shape
//	s := schema.BuildAnswersSchema(req.Questions)
//
//	// Check collected answers before submitting the decision
//	if err := schema.ValidateAnswers(req.Questions, answers); err != nil {
//		return err
//	}
package schema
