package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldOpportunity is the structured log field key for the opportunity identity.
	FieldOpportunity = "opportunity_id"
	// FieldURL is the structured log field key for the URL being fetched.
	FieldURL = "url"
	// FieldReason is the structured log field key for a typed failure or skip reason.
	FieldReason = "reason"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// If the logger is nil or no fields are supplied, the input logger is returned
// unchanged, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// OpportunityFields returns standard zap fields identifying an opportunity.
// Empty values are ignored to keep log entries compact.
func OpportunityFields(id, sender string) []zap.Field {
	return StringFields(
		StringField{Key: FieldOpportunity, Value: id},
		StringField{Key: "sender", Value: sender},
	)
}
