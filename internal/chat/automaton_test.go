package chat

import (
	"context"
	"testing"
	"time"

	"chat-bridge/internal/entity"
	"chat-bridge/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// echoHost scripts a chat UI that "generates" for a few seconds after each
// commit and then answers with the submitted text.
type echoHost struct {
	page     *fakePage
	clock    *fakeClock
	sel      Selectors
	bubbles  []*fakeElement
	genUntil time.Time
}

func newEchoHost() *echoHost {
	h := &echoHost{
		page:  newFakePage(),
		clock: newFakeClock(),
		sel:   DefaultSelectors(),
	}

	input := h.sel.Input[len(h.sel.Input)-1]
	h.page.visibleFn = func(selector string) (bool, error) {
		switch selector {
		case input:
			return true, nil
		case h.sel.Liveness[0]:
			return h.clock.Now().Before(h.genUntil), nil
		}

		return false, nil
	}

	h.page.onPress = func(p *fakePage, key string) {
		if key != commitKey {
			return
		}

		text := p.inputs[input]
		p.inputs[input] = ""
		h.genUntil = h.clock.Now().Add(3 * time.Second)

		h.bubbles = append(h.bubbles, &fakeElement{text: text})
		h.bubbles = append(h.bubbles, &fakeElement{
			children: map[string]*fakeElement{
				h.sel.Markdown: {textFn: func() string {
					if h.clock.Now().Before(h.genUntil) {
						return text[:len(text)/2]
					}

					return text
				}},
			},
		})
		p.queries[h.sel.Bubbles[0]] = h.bubbles
		p.url = "https://chat.example.com/a/chat/s/7f3c2a"
	}

	return h
}

func TestAutomaton_RoundTripEchoesText(t *testing.T) {
	h := newEchoHost()
	a := NewAutomaton(1, h.page, testOptions(h.clock), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "https://chat.example.com"))
	_, ok := a.ConversationID()
	assert.False(t, ok, "new conversation has no permanent id yet")

	for _, text := range []string{"hello there", "second turn"} {
		sent, err := a.Send(ctx, entity.SubmissionRequest{Text: text})
		require.NoError(t, err)
		require.True(t, sent)

		done, err := a.AwaitCompletion(ctx, time.Minute)
		require.NoError(t, err)
		require.True(t, done)

		reply, err := a.LatestReply(ctx)
		require.NoError(t, err)
		assert.True(t, reply.Found)
		assert.Equal(t, text, reply.Text)
	}

	id, ok := a.ConversationID()
	assert.True(t, ok)
	assert.Equal(t, "7f3c2a", id)
	assert.Equal(t, "https://chat.example.com/a/chat/s/7f3c2a", a.CurrentURL())
}

func TestAutomaton_InputNotFoundLogsCandidates(t *testing.T) {
	page := newFakePage()
	page.evalRes = []any{
		map[string]any{"tag": "textarea", "id": "prompt", "placeholder": "Message", "disabled": false},
	}

	a := NewAutomaton(1, page, testOptions(newFakeClock()), zap.NewNop())

	sent, err := a.Send(context.Background(), entity.SubmissionRequest{Text: "hello"})
	assert.False(t, sent)
	assert.Equal(t, apperr.CodeInputNotFound, apperr.CodeOf(err))
	assert.Equal(t, 1, page.evalled)
}

func TestAutomaton_OpenCapabilityFailure(t *testing.T) {
	page := newFakePage()
	page.lost = true

	err := NewAutomaton(1, page, testOptions(newFakeClock()), zap.NewNop()).Open(context.Background(), "https://chat.example.com")
	assert.True(t, apperr.IsCapability(err))
}

func TestConversationIDFromURL(t *testing.T) {
	tests := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{url: "https://chat.deepseek.com/a/chat/s/abc-123", want: "abc-123", wantOK: true},
		{url: "https://chat.deepseek.com/a/chat/s/abc-123?ref=x", want: "abc-123", wantOK: true},
		{url: "https://chat.deepseek.com/a/chat/s/abc/", want: "abc", wantOK: true},
		{url: "https://chat.deepseek.com/", wantOK: false},
		{url: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, ok := ConversationIDFromURL(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCandidates(t *testing.T) {
	got := parseCandidates([]any{
		map[string]any{"tag": "button", "role": "button", "ariaLabel": "Send", "disabled": true},
		"garbage",
	})

	require.Len(t, got, 1)
	assert.Equal(t, Candidate{Tag: "button", Role: "button", AriaLabel: "Send", Disabled: true}, got[0])
	assert.Nil(t, parseCandidates("not a list"))
}
