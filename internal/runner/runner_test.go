package runner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"streakd/internal/browser"
	"streakd/internal/browser/browsertest"
	"streakd/internal/config"
	"streakd/internal/creds"
	"streakd/internal/delivery"
	"streakd/internal/notify"
	"streakd/internal/resolver"
)

type capture struct {
	mu   sync.Mutex
	msgs []string
}

func (c *capture) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, text)
	return nil
}

func (c *capture) count(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.msgs {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

type fakeSession struct {
	page     browser.Page
	base     string
	injected []browser.Cookie
	closed   bool
}

func (s *fakeSession) Page() browser.Page { return s.page }

func (s *fakeSession) InjectCookies(_ context.Context, base string, cookies []browser.Cookie) error {
	s.base = base
	s.injected = cookies
	return nil
}

func (s *fakeSession) Close() { s.closed = true }

// messagesView renders conversation rows for the given nicknames plus a
// compose input, the shape the resolver and executor expect.
func messagesView(nicknames ...string) *browsertest.Page {
	list := browsertest.NewNode("div", map[string]string{"class": "ConversationList"}, "")
	for _, n := range nicknames {
		label := browsertest.NewNode("p", map[string]string{"class": "PInfoNickname"}, n)
		list.Append(browsertest.NewNode("div", map[string]string{"class": "ConversationItem"}, "", label))
	}
	input := browsertest.NewNode("div", map[string]string{"contenteditable": "true"}, "")
	return browsertest.NewPage(browsertest.NewNode("body", nil, "", list, input))
}

func testRunner(page *browsertest.Page) (*Runner, *capture, *fakeSession) {
	mirror := &capture{}
	sink := notify.New(zap.NewNop(), mirror,
		notify.WithMinSeverity(notify.SeverityDebug),
		notify.WithMinInterval(0))

	r := New(config.Default(), zap.NewNop(), sink, nil)
	r.betweenContacts = 0

	sess := &fakeSession{page: page}
	r.openSession = func(context.Context, browser.Config, *zap.Logger) (Session, error) {
		return sess, nil
	}
	r.loadCreds = func() ([]browser.Cookie, error) {
		return []browser.Cookie{{Name: "sessionid", Value: "abc"}}, nil
	}
	r.newVerifier = func(p browser.Page) *browser.Verifier {
		v := browser.NewVerifier(p, zap.NewNop())
		v.PageLoadWait = 0
		v.ProbeTimeout = 0
		v.DismissSettle = 0
		return v
	}
	r.newExecutor = func(res *resolver.Resolver) *delivery.Executor {
		e := delivery.New(zap.NewNop(), sink, res)
		e.ElementWait = 0
		e.FocusSettle = 0
		e.SendDelay = 0
		e.RetryDelay = 0
		e.ProbeTimeout = 0
		e.ScrollSettle = 0
		e.ReloadWait = 0
		return e
	}
	return r, mirror, sess
}

func TestRunDeliversToResolvedContacts(t *testing.T) {
	page := messagesView("Alice", "Bob")
	r, mirror, sess := testRunner(page)

	report, err := r.Run(context.Background(), Options{Identities: []string{"Alice", "Bob"}, Message: "streak!"})

	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.TargetCount)
	assert.Equal(t, 2, report.ResolvedCount)
	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		assert.True(t, res.Success)
	}
	assert.Equal(t, 2, report.SuccessCount())

	assert.True(t, sess.closed)
	assert.NotEmpty(t, sess.injected)
	assert.Equal(t, 1, mirror.count("2/2 delivered"))
}

func TestRunNoContactsConfigured(t *testing.T) {
	r, mirror, _ := testRunner(messagesView())

	report, err := r.Run(context.Background(), Options{})

	assert.ErrorIs(t, err, ErrNoContacts)
	assert.Empty(t, report.Results)
	assert.Equal(t, 1, mirror.count("FATAL"))
}

func TestRunMissingCredentialsIsFatal(t *testing.T) {
	r, mirror, _ := testRunner(messagesView("Alice"))
	opened := false
	r.loadCreds = func() ([]browser.Cookie, error) { return nil, creds.ErrMissing }
	prev := r.openSession
	r.openSession = func(ctx context.Context, c browser.Config, l *zap.Logger) (Session, error) {
		opened = true
		return prev(ctx, c, l)
	}

	report, err := r.Run(context.Background(), Options{Identities: []string{"Alice"}})

	assert.ErrorIs(t, err, creds.ErrMissing)
	assert.Empty(t, report.Results)
	assert.False(t, opened)
	assert.Equal(t, 1, mirror.count("FATAL"))
}

func TestRunLoginRedirectIsFatal(t *testing.T) {
	page := messagesView("Alice")
	cfg := config.Default()
	page.Redirects = map[string]string{cfg.MessagesURL: "https://www.tiktok.com/login"}
	r, mirror, sess := testRunner(page)

	report, err := r.Run(context.Background(), Options{Identities: []string{"Alice"}})

	assert.ErrorIs(t, err, browser.ErrNotLoggedIn)
	assert.Empty(t, report.Results)
	assert.Equal(t, 1, mirror.count("FATAL"))
	// The session is released even when the run aborts.
	assert.True(t, sess.closed)
}

func TestRunPartialResolution(t *testing.T) {
	r, _, _ := testRunner(messagesView("Alice"))

	report, err := r.Run(context.Background(), Options{Identities: []string{"Alice", "Bob"}})

	require.NoError(t, err)
	assert.Equal(t, 2, report.TargetCount)
	assert.Equal(t, 1, report.ResolvedCount)
	// One result per resolved contact, never per requested identity.
	require.Len(t, report.Results, report.ResolvedCount)
	assert.Equal(t, "Alice", report.Results[0].Identity)
	assert.True(t, report.Results[0].Success)
}

func TestRunNoneResolved(t *testing.T) {
	r, mirror, _ := testRunner(messagesView("Stranger"))

	report, err := r.Run(context.Background(), Options{Identities: []string{"Ghost"}})

	require.NoError(t, err)
	assert.Zero(t, report.ResolvedCount)
	assert.Empty(t, report.Results)
	assert.Equal(t, 1, mirror.count("were found"))
	assert.Equal(t, 0, mirror.count("FATAL"))
}

func TestRunTestMode(t *testing.T) {
	page := messagesView("Alice")
	r, _, _ := testRunner(page)
	row, ok := page.Find(`div[class*="ConversationItem"]`, 0)
	require.True(t, ok)

	report, err := r.Run(context.Background(), Options{Identities: []string{"Alice"}, TestMode: true})

	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].Success)
	assert.Empty(t, report.Results[0].Attempts)
	assert.Equal(t, 0, row.(*browsertest.Node).Clicks)
}

func TestRunAttemptCapInvariant(t *testing.T) {
	r, _, _ := testRunner(messagesView("Alice"))

	report, err := r.Run(context.Background(), Options{Identities: []string{"Alice"}})

	require.NoError(t, err)
	for _, res := range report.Results {
		assert.LessOrEqual(t, len(res.Attempts), delivery.MaxAttempts)
	}
}

func TestTriggerSingleFlight(t *testing.T) {
	r, _, _ := testRunner(messagesView("Alice"))
	release := make(chan struct{})
	r.loadCreds = func() ([]browser.Cookie, error) {
		<-release
		return []browser.Cookie{{Name: "sessionid", Value: "abc"}}, nil
	}
	trig := NewTrigger(r, zap.NewNop())
	done := make(chan struct{}, 2)
	trig.OnComplete = func(*Report, error) { done <- struct{}{} }
	opts := Options{Identities: []string{"Alice"}}

	require.NoError(t, trig.Fire(context.Background(), opts))
	assert.Eventually(t, trig.Active, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, trig.Fire(context.Background(), opts), ErrRunInFlight)

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run completion not observed")
	}
	assert.Eventually(t, func() bool { return !trig.Active() }, time.Second, 5*time.Millisecond)
	assert.NotNil(t, trig.Last())
	require.NoError(t, trig.Fire(context.Background(), opts))
}
