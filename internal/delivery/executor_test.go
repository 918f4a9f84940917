package delivery_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"streakd/internal/browser/browsertest"
	"streakd/internal/delivery"
	"streakd/internal/notify"
	"streakd/internal/resolver"
)

func fastExecutor() *delivery.Executor {
	e := delivery.New(zap.NewNop(), notify.New(zap.NewNop(), nil), resolver.New(zap.NewNop()))
	e.ElementWait = 0
	e.FocusSettle = 0
	e.SendDelay = 0
	e.RetryDelay = 0
	e.ProbeTimeout = 0
	e.ScrollSettle = 0
	e.ReloadWait = 0
	return e
}

// messagesView builds a page with one conversation row and a compose input.
func messagesView(nickname string) (*browsertest.Page, *browsertest.Node, *browsertest.Node) {
	label := browsertest.NewNode("p", map[string]string{"class": "PInfoNickname"}, nickname)
	row := browsertest.NewNode("div", map[string]string{"class": "ConversationItem"}, "", label)
	input := browsertest.NewNode("div", map[string]string{"contenteditable": "true"}, "")
	body := browsertest.NewNode("body", nil, "",
		browsertest.NewNode("div", map[string]string{"class": "ConversationList"}, "", row),
		input)
	return browsertest.NewPage(body), row, input
}

func contactFor(identity string) resolver.Contact {
	return resolver.Contact{Identity: identity}
}

func TestDeliverSuccessFirstAttempt(t *testing.T) {
	page, row, input := messagesView("Dew")

	res := fastExecutor().Deliver(context.Background(), page, contactFor("Dew"), "streak!", false)

	assert.True(t, res.Success)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, "direct/nickname-selector", res.Attempts[0].Strategy)
	assert.Empty(t, res.Attempts[0].Error)

	assert.Equal(t, 1, row.Clicks)
	assert.Equal(t, []string{"streak!"}, input.Inputs)
	// No explicit send control in the tree: enter-to-send.
	assert.Equal(t, 1, input.EnterPresses)
}

func TestDeliverUsesSendControlWhenPresent(t *testing.T) {
	page, _, input := messagesView("Dew")
	send := browsertest.NewNode("button", map[string]string{"data-e2e": "send-button"}, "")
	page.Root.Append(send)

	res := fastExecutor().Deliver(context.Background(), page, contactFor("Dew"), "hi", false)

	assert.True(t, res.Success)
	assert.Equal(t, 1, send.Clicks)
	assert.Equal(t, 0, input.EnterPresses)
}

func TestDeliverTestModeSkipsInteraction(t *testing.T) {
	page, row, input := messagesView("Dew")

	res := fastExecutor().Deliver(context.Background(), page, contactFor("Dew"), "hi", true)

	assert.True(t, res.Success)
	assert.Empty(t, res.Attempts)
	assert.Equal(t, 0, row.Clicks)
	assert.Empty(t, input.Inputs)
	assert.Equal(t, 0, input.EnterPresses)
}

func TestDeliverExhaustsRetries(t *testing.T) {
	// Contact never renders: all three locate escalations fail.
	page, _, _ := messagesView("SomebodyElse")

	res := fastExecutor().Deliver(context.Background(), page, contactFor("Ghost"), "hi", false)

	assert.False(t, res.Success)
	require.Len(t, res.Attempts, delivery.MaxAttempts)
	assert.Equal(t, "direct", res.Attempts[0].Strategy)
	assert.Equal(t, "scroll", res.Attempts[1].Strategy)
	assert.Equal(t, "reload", res.Attempts[2].Strategy)
	for _, a := range res.Attempts {
		assert.NotEmpty(t, a.Error)
	}
	// Escalation side effects actually happened.
	assert.Len(t, page.Scrolls, 2)
	assert.Equal(t, 1, page.Reloads)
}

func TestDeliverRecoversAfterScroll(t *testing.T) {
	page, _, input := messagesView("Visible")
	list, ok := page.Find(`div[class*="ConversationList"]`, 0)
	require.True(t, ok)

	// The target row only renders once the list is scrolled.
	page.OnScroll = func(p *browsertest.Page) {
		p.OnScroll = nil
		label := browsertest.NewNode("p", map[string]string{"class": "PInfoNickname"}, "Lazy")
		list.(*browsertest.Node).Append(
			browsertest.NewNode("div", map[string]string{"class": "ConversationItem"}, "", label))
	}

	res := fastExecutor().Deliver(context.Background(), page, contactFor("Lazy"), "hi", false)

	assert.True(t, res.Success)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, "direct", res.Attempts[0].Strategy)
	assert.Equal(t, "scroll/nickname-selector", res.Attempts[1].Strategy)
	assert.Equal(t, []string{"hi"}, input.Inputs)
}

func TestDeliverFallsBackToScriptClick(t *testing.T) {
	page, row, _ := messagesView("Dew")
	row.ClickErr = assert.AnError

	res := fastExecutor().Deliver(context.Background(), page, contactFor("Dew"), "hi", false)

	assert.True(t, res.Success)
	assert.Equal(t, 0, row.Clicks)
	assert.Equal(t, 1, row.ScriptClicks)
}

func TestDeliverAttemptCapInvariant(t *testing.T) {
	page, _, _ := messagesView("Nobody")

	res := fastExecutor().Deliver(context.Background(), page, contactFor("Ghost"), "hi", false)
	assert.LessOrEqual(t, len(res.Attempts), delivery.MaxAttempts)
}
