// Package matchererr implements the error taxonomy from the matcher's
// error handling design: validation errors carry a stable numeric code
// a caller can render, infrastructure errors are distinguished as
// retryable, and fatal startup errors are distinguished as
// process-terminating.
package matchererr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error without being the error's concrete type.
type Kind int

const (
	KindValidation Kind = iota
	KindTransientInfrastructure
	KindFatalStartup
	KindCapacity
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindTransientInfrastructure:
		return "TransientInfrastructureError"
	case KindFatalStartup:
		return "FatalStartupError"
	case KindCapacity:
		return "CapacityError"
	case KindConflict:
		return "ConflictError"
	default:
		return "UnknownError"
	}
}

// Code is a stable numeric identifier surfaced to callers, e.g.
// 9441295 for DeviantOrderPrice.
type Code int

const (
	CodeInvalidSignature          Code = 9440000
	CodeOrderOutdated              Code = 9440001
	CodeAssetPairDenylisted        Code = 9440002
	CodeAddressBlacklisted         Code = 9440003
	CodeOrderVersionDenied         Code = 9440004
	CodeUnexpectedFeeAsset         Code = 9440005
	CodeFeeNotEnough               Code = 9440006
	CodePriceTickInvalid           Code = 9440007
	CodeDeviantOrderPrice          Code = 9441295
	CodeDeviantOrderMatcherFee     Code = 9441551
	CodeMarketStatusMismatch       Code = 9440008
	CodeSelfTradeDenied            Code = 9440009
	CodeInvalidPrice               Code = 9440010
	CodeAssetNotFound              Code = 9440011
	CodeOrderAssetScriptDenied     Code = 11536130
	CodeMatcherAccountScriptDenied Code = 11536131
	CodeBalanceNotEnough           Code = 9440012
	CodeOrderNotFound              Code = 9440013
	CodeAlreadyTerminal            Code = 9440014
	CodeDuplicateOrder             Code = 9440015
	CodeMatcherIsStarting          Code = 9440016
	CodeNonCanonicalPriceAsset     Code = 9440017
)

// MatcherError is the structured (code, message, params) shape the
// validator and book return to callers.
type MatcherError struct {
	Kind    Kind
	Code    Code
	Message string
	Params  map[string]any
	cause   error
}

func (e *MatcherError) Error() string {
	if len(e.Params) == 0 {
		return fmt.Sprintf("%s[%d]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s[%d]: %s %v", e.Kind, e.Code, e.Message, e.Params)
}

func (e *MatcherError) Unwrap() error { return e.cause }

// Validation builds a ValidationError with the given code and message.
func Validation(code Code, message string, params map[string]any) *MatcherError {
	return &MatcherError{Kind: KindValidation, Code: code, Message: message, Params: params}
}

// Conflict builds a ConflictError, e.g. a duplicate order id.
func Conflict(code Code, message string) *MatcherError {
	return &MatcherError{Kind: KindConflict, Code: code, Message: message}
}

// Capacity builds a CapacityError, e.g. a full producer buffer.
func Capacity(message string) *MatcherError {
	return &MatcherError{Kind: KindCapacity, Message: message}
}

// Transient wraps cause as a TransientInfrastructureError, retaining the
// original error through errors.Wrap so the backoff loop can log the
// root cause.
func Transient(cause error, message string) *MatcherError {
	return &MatcherError{Kind: KindTransientInfrastructure, Message: message, cause: errors.Wrap(cause, message)}
}

// FatalStartup wraps cause as a FatalStartupError that must abort the
// process (snapshot corruption, unknown configured asset, log offset
// rewind).
func FatalStartup(cause error, message string) *MatcherError {
	return &MatcherError{Kind: KindFatalStartup, Message: message, cause: errors.Wrap(cause, message)}
}

// IsKind reports whether err is a *MatcherError of the given kind.
func IsKind(err error, k Kind) bool {
	var me *MatcherError
	if errors.As(err, &me) {
		return me.Kind == k
	}
	return false
}
