// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package errors carries the crawler's error taxonomy as machine-readable
// codes on top of samber/oops. Codes are dotted paths whose last segment is
// the reason (not_found, transient, corrupt, ...).
package errors

import (
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeGraphTransient     Code = "graph.request.transient"
	CodeGraphRejected      Code = "graph.request.rejected"
	CodeGraphNotFound      Code = "graph.work.not_found"
	CodeGraphMalformed     Code = "graph.response.malformed"
	CodeContentUnavailable Code = "content.unavailable"
	CodeRelevanceFailure   Code = "relevance.failure"
	CodeExtractionFailure  Code = "extraction.failure"
	CodeExtractionSchema   Code = "extraction.schema.invalid"
	CodeStateCorrupt       Code = "state.load.corrupt"
	CodeStatePersist       Code = "state.persist.failure"
	CodeConfigInvalid      Code = "config.validate.invalid_value"
	CodeProjectLoad        Code = "project.load.failure"
	CodeDatasetFailure     Code = "dataset.database.failure"
	CodeCLIInputInvalid    Code = "cli.input.invalid"
)

// Attr is a structured key/value attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// FieldPaper tags an error with the paper it concerns.
func FieldPaper(id string) Attr {
	return Field("paper_id", id)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

// CodeOf returns the outermost code in the chain, or "" for uncoded errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch c := oopsErr.Code().(type) {
	case Code:
		return c
	case string:
		return Code(c)
	default:
		return ""
	}
}

// FieldsOf returns the structured context attached to err.
func FieldsOf(err error) map[string]any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

// IsTransient reports whether err is worth retrying at a higher layer.
func IsTransient(err error) bool {
	return reason(CodeOf(err)) == "transient"
}

func IsCorrupt(err error) bool {
	return reason(CodeOf(err)) == "corrupt"
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		if f.Key == "" {
			continue
		}
		pairs = append(pairs, f.Key, f.Value)
	}
	return pairs
}

func reason(code Code) string {
	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
