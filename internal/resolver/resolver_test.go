package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"streakd/internal/browser/browsertest"
	"streakd/internal/resolver"
)

// conversationList builds a message-list tree with one conversation row per
// nickname, each label wrapped in a container the resolver should find.
func conversationList(nicknames ...string) (*browsertest.Page, map[string]*browsertest.Node) {
	list := browsertest.NewNode("div", map[string]string{"class": "ConversationList"}, "")
	rows := make(map[string]*browsertest.Node, len(nicknames))
	for _, name := range nicknames {
		label := browsertest.NewNode("p", map[string]string{"class": "PInfoNickname"}, name)
		info := browsertest.NewNode("div", map[string]string{"class": "info-wrap"}, "", label)
		row := browsertest.NewNode("div", map[string]string{"class": "ConversationItem"}, "", info)
		list.Append(row)
		rows[name] = row
	}
	body := browsertest.NewNode("body", nil, "", list)
	return browsertest.NewPage(body), rows
}

func TestResolveMatchesCaseInsensitively(t *testing.T) {
	page, rows := conversationList("Dew", "Someone Else")
	r := resolver.New(zap.NewNop())

	upper := r.Resolve(page, []string{"Dew"})
	lower := r.Resolve(page, []string{"dew"})

	require.Len(t, upper, 1)
	require.Len(t, lower, 1)
	assert.Same(t, rows["Dew"], upper[0].Element)
	assert.Same(t, rows["Dew"], lower[0].Element)
	assert.Equal(t, resolver.StrategySelector, upper[0].Strategy)
}

func TestResolveClimbsToConversationContainer(t *testing.T) {
	page, rows := conversationList("Alice")
	r := resolver.New(zap.NewNop())

	got := r.Resolve(page, []string{"Alice"})
	require.Len(t, got, 1)
	// Not the label, not the intermediate wrapper: the Item container.
	assert.Same(t, rows["Alice"], got[0].Element)
}

func TestResolveFallsBackToLabelWithoutContainer(t *testing.T) {
	// Label with no Item/Container ancestor within the hop bound.
	label := browsertest.NewNode("p", map[string]string{"class": "PInfoNickname"}, "Orphan")
	body := browsertest.NewNode("body", nil, "",
		browsertest.NewNode("div", map[string]string{"class": "plain"}, "", label))
	page := browsertest.NewPage(body)

	got := resolver.New(zap.NewNop()).Resolve(page, []string{"Orphan"})
	require.Len(t, got, 1)
	assert.Same(t, label, got[0].Element)
}

func TestResolveTextFallback(t *testing.T) {
	// No nickname-class markup at all; only a bare text node.
	body := browsertest.NewNode("body", nil, "",
		browsertest.NewNode("div", map[string]string{"class": "row"}, "",
			browsertest.NewNode("span", nil, "Bob")))
	page := browsertest.NewPage(body)

	got := resolver.New(zap.NewNop()).Resolve(page, []string{"Bob"})
	require.Len(t, got, 1)
	assert.Equal(t, resolver.StrategyTextExact, got[0].Strategy)
}

func TestResolveSubstringFallback(t *testing.T) {
	body := browsertest.NewNode("body", nil, "",
		browsertest.NewNode("span", nil, "chat with Bobby today"))
	page := browsertest.NewPage(body)

	got := resolver.New(zap.NewNop()).Resolve(page, []string{"Bobby"})
	require.Len(t, got, 1)
	assert.Equal(t, resolver.StrategyTextSubstring, got[0].Strategy)
}

func TestResolvePartialDeficit(t *testing.T) {
	page, _ := conversationList("Alice")

	got := resolver.New(zap.NewNop()).Resolve(page, []string{"Alice", "Bob"})
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0].Identity)
}

func TestResolveSkipsDuplicates(t *testing.T) {
	page, _ := conversationList("Dew")

	got := resolver.New(zap.NewNop()).Resolve(page, []string{"Dew", "dew", "DEW"})
	assert.Len(t, got, 1)
}

func TestResolvePreservesInputOrder(t *testing.T) {
	page, _ := conversationList("Alice", "Bob", "Carol")

	got := resolver.New(zap.NewNop()).Resolve(page, []string{"Carol", "Alice"})
	require.Len(t, got, 2)
	assert.Equal(t, "Carol", got[0].Identity)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, "Alice", got[1].Identity)
	assert.Equal(t, 1, got[1].Index)
}

func TestResolveEmptyPage(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewNode("body", nil, ""))

	got := resolver.New(zap.NewNop()).Resolve(page, []string{"Alice", "Bob"})
	assert.Empty(t, got)
}
