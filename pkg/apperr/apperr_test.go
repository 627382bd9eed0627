package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_NilPassesThrough(t *testing.T) {
	assert.NoError(t, Wrap("op", CodeInternal, nil, nil))
	assert.NoError(t, Capability("op", nil))
}

func TestCodeOf_Outermost(t *testing.T) {
	inner := Wrap("Inner", CodeTimeout, errors.New("slow"), nil)
	outer := Wrap("Outer", CodeUnavailable, inner, nil)

	assert.Equal(t, CodeUnavailable, CodeOf(outer))
	assert.Equal(t, CodeTimeout, CodeOf(inner))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.True(t, Is(outer, CodeUnavailable))
	assert.False(t, Is(outer, CodeTimeout))
}

func TestIsCapability_SeesThroughWrapping(t *testing.T) {
	base := Capability("Page.Click", errors.New("target closed"))
	wrapped := Wrap("Submitter.Send", CodeSubmissionAmbiguous, base, nil)

	assert.True(t, IsCapability(base))
	assert.True(t, IsCapability(wrapped))
	assert.True(t, IsCapability(fmt.Errorf("turn: %w", wrapped)))
	assert.False(t, IsCapability(Wrap("x", CodeInputNotFound, errors.New("missing"), nil)))
	assert.False(t, IsCapability(errors.New("plain")))
}

func TestCapability_DoesNotDoubleWrap(t *testing.T) {
	base := Capability("A", errors.New("gone"))

	assert.Same(t, base, Capability("B", base))
}

func TestError_Message(t *testing.T) {
	err := WrapWithReason("Store.GetChat", CodeNotFound, errors.New("no rows"), "chat_missing")

	assert.Equal(t, "Store.GetChat: no rows", err.Error())

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "chat_missing", e.Metadata[MetaReason])
}
