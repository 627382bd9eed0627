package apperr

import (
	"errors"
	"fmt"
)

const (
	MetaReason   = "reason"
	MetaStage    = "stage"
	MetaField    = "field"
	MetaChatID   = "chat_id"
	MetaAction   = "action"
	MetaSelector = "selector"
	MetaURL      = "url"
	MetaPath     = "path"
	MetaTimeout  = "timeout"

	StagePreparation = "preparation"
	StageBrowser     = "browser"
	StageSession     = "session"
	StageNavigation  = "navigation"
	StageInteraction = "interaction"
	StageUpload      = "upload"
	StageCompletion  = "completion"
	StageExtraction  = "extraction"
	StageStorage     = "storage"

	CodeInternal        = "internal"
	CodeInvalidArgument = "invalid_argument"
	CodeNotFound        = "not_found"
	CodeUnavailable     = "unavailable"
	CodeTimeout         = "timeout"
	CodeBrowserNotReady = "browser_not_ready"
	CodeActionFailed    = "action_failed"

	// UI-variance outcomes. These are expected operating conditions and are
	// reported alongside a false/empty result, never as a fatal failure.
	CodeElementNotFound     = "element_not_found"
	CodeInputNotFound       = "input_not_found"
	CodeSubmissionAmbiguous = "submission_ambiguous"
	CodeCompletionTimeout   = "completion_timeout"
	CodeExtractionEmpty     = "extraction_empty"

	// CodeCapabilityFailure means the page or browser connection is gone.
	// The owning automaton must be discarded.
	CodeCapabilityFailure = "capability_failure"
)

type Error struct {
	Op       string
	Code     string
	Err      error
	Metadata map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Wrap(op, code string, err error, metadata map[string]any) error {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &Error{
		Op:       op,
		Code:     code,
		Err:      err,
		Metadata: metadata,
	}
}

func WrapWithReason(op, code string, err error, reason string) error {
	return Wrap(op, code, err, map[string]any{
		MetaReason: reason,
	})
}

func WrapErrorWithReason(op, code, reason string) error {
	return Wrap(op, code, errors.New(reason), map[string]any{
		MetaReason: reason,
	})
}

func InvalidReqError(op, field string, err error) error {
	return Wrap(op, CodeInvalidArgument, err, map[string]any{
		MetaField:  field,
		MetaReason: "invalid_request",
	})
}

func NotFoundError(op string, err error) error {
	return Wrap(op, CodeNotFound, err, map[string]any{
		MetaReason: "not_found",
	})
}

// Capability wraps err as a fatal capability failure unless it already is one.
func Capability(op string, err error) error {
	if err == nil {
		return nil
	}

	if IsCapability(err) {
		return err
	}

	return Wrap(op, CodeCapabilityFailure, err, map[string]any{
		MetaReason: "capability_lost",
		MetaStage:  StageBrowser,
	})
}

// CodeOf returns the code of the outermost *Error in the chain, or "" if none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ""
}

// IsCapability reports whether any *Error in the chain carries CodeCapabilityFailure.
func IsCapability(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}

		if e.Code == CodeCapabilityFailure {
			return true
		}

		err = e.Err
	}

	return false
}

func Is(err error, code string) bool {
	return CodeOf(err) == code
}
