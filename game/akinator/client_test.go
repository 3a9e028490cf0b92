package akinator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/akibot/core/netutil"
	"github.com/m3rciful/akibot/game/engine"
)

const gamePage = `<html><script>
$('#session').val('sess-42');
$('#signature').val('sig-7');
</script>
<p class="question-text" id="question-label">Seu personagem &eacute; real?</p></html>`

type fakeAkinator struct {
	mu    sync.Mutex
	forms map[string][]url.Values
	reply map[string]string
}

func newFake() *fakeAkinator {
	return &fakeAkinator{forms: map[string][]url.Values{}, reply: map[string]string{}}
}

func (f *fakeAkinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method", http.StatusMethodNotAllowed)
		return
	}
	_ = r.ParseForm()
	f.mu.Lock()
	f.forms[r.URL.Path] = append(f.forms[r.URL.Path], r.PostForm)
	body, ok := f.reply[r.URL.Path]
	f.mu.Unlock()
	if r.URL.Path == "/game" && !ok {
		body = gamePage
	}
	if body == "" {
		http.NotFound(w, r)
		return
	}
	fmt.Fprint(w, body)
}

func (f *fakeAkinator) lastForm(path string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	forms := f.forms[path]
	if len(forms) == 0 {
		return nil
	}
	return forms[len(forms)-1]
}

func startedClient(t *testing.T) (*Client, *fakeAkinator) {
	t.Helper()
	fake := newFake()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c := New(Config{BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
	st, err := c.Start(context.Background(), engine.StartOptions{Language: "pt", Theme: engine.ThemeCharacters})
	require.NoError(t, err)
	assert.Equal(t, "Seu personagem é real?", st.Question)
	assert.Zero(t, st.Progress)
	assert.False(t, st.ReadyToGuess)
	return c, fake
}

func TestStartPostsThemeAndChildMode(t *testing.T) {
	_, fake := startedClient(t)
	form := fake.lastForm("/game")
	assert.Equal(t, "1", form.Get("sid"))
	assert.Equal(t, "false", form.Get("cm"))
}

func TestAnswerNextQuestion(t *testing.T) {
	c, fake := startedClient(t)
	fake.reply["/answer"] = `{"completion":"OK","akitude":"x.png","step":"1","progression":"12.5","question_id":"9","question":"Ele &eacute; brasileiro?"}`

	st, err := c.Answer(context.Background(), engine.ProbablyNot)
	require.NoError(t, err)
	assert.Equal(t, "Ele é brasileiro?", st.Question)
	assert.InDelta(t, 12.5, st.Progress, 0.001)
	assert.Equal(t, 1, st.Step)

	form := fake.lastForm("/answer")
	assert.Equal(t, "4", form.Get("answer"))
	assert.Equal(t, "0", form.Get("step"))
	assert.Equal(t, "sess-42", form.Get("session"))
	assert.Equal(t, "sig-7", form.Get("signature"))
	assert.Equal(t, "", form.Get("step_last_proposition"))
}

func TestAnswerProposal(t *testing.T) {
	c, fake := startedClient(t)
	fake.reply["/answer"] = `{"completion":"OK","step":5,"progression":91.2,"question":"Ele canta?"}`
	_, err := c.Answer(context.Background(), engine.Yes)
	require.NoError(t, err)

	fake.reply["/answer"] = `{"completion":"OK","id_proposition":"123","name_proposition":"Pelé","description_proposition":"Jogador","photo":"https://photos.example/pele.jpg","pseudo":"x","flag_photo":0}`
	st, err := c.Answer(context.Background(), engine.Yes)
	require.NoError(t, err)
	require.True(t, st.ReadyToGuess)
	require.NotNil(t, st.Proposal)
	assert.Equal(t, "123", st.Proposal.ID)
	assert.Equal(t, "Pelé", st.Proposal.Name)
	assert.Equal(t, "Jogador", st.Proposal.Description)
	assert.Equal(t, "https://photos.example/pele.jpg", st.Proposal.PhotoURL)
	assert.InDelta(t, 91.2, st.Progress, 0.001, "a proposal keeps the last progression")

	fake.reply["/answer"] = `{"completion":"OK","step":"6","progression":"40","question":"Ele é ator?"}`
	_, err = c.Answer(context.Background(), engine.No)
	require.NoError(t, err)
	assert.Equal(t, "5", fake.lastForm("/answer").Get("step_last_proposition"))
}

func TestBack(t *testing.T) {
	c, fake := startedClient(t)
	_, err := c.Back(context.Background())
	assert.ErrorIs(t, err, engine.ErrCannotGoBack)

	fake.reply["/answer"] = `{"completion":"OK","step":"1","progression":"20","question":"Q2"}`
	_, err = c.Answer(context.Background(), engine.Yes)
	require.NoError(t, err)

	fake.reply["/cancel_answer"] = `{"completion":"OK","step":"0","progression":"0","question":"Q1"}`
	st, err := c.Back(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Q1", st.Question)
	assert.Equal(t, 0, st.Step)
	assert.Equal(t, "1", fake.lastForm("/cancel_answer").Get("step"))
}

func TestErrors(t *testing.T) {
	c := New(Config{BaseURL: "http://unused.invalid"})
	_, err := c.Answer(context.Background(), engine.Yes)
	assert.ErrorIs(t, err, ErrNotStarted)

	c, fake := startedClient(t)
	fake.reply["/answer"] = `{"completion":"KO - TIMEOUT"}`
	_, err = c.Answer(context.Background(), engine.Yes)
	assert.ErrorIs(t, err, ErrTimeout)

	fake.reply["/answer"] = `{"completion":"KO - SERVER DOWN"}`
	_, err = c.Answer(context.Background(), engine.Yes)
	assert.ErrorContains(t, err, "KO - SERVER DOWN")

	fake.reply["/answer"] = `<html>oops</html>`
	_, err = c.Answer(context.Background(), engine.Yes)
	assert.ErrorContains(t, err, "decode response")

	fake.reply["/answer"] = `{"completion":"OK","step":"x","progression":"1","question":"q"}`
	_, err = c.Answer(context.Background(), engine.Yes)
	assert.ErrorContains(t, err, "bad step")

	_, err = c.Answer(context.Background(), engine.Answer("maybe"))
	assert.ErrorIs(t, err, engine.ErrUnknownAnswer)
}

func TestStartRejectsUnexpectedPage(t *testing.T) {
	fake := newFake()
	fake.reply["/game"] = "<html>maintenance</html>"
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}).Start(context.Background(), engine.StartOptions{Language: "pt"})
	assert.ErrorContains(t, err, "unexpected game page")

	_, err = New(Config{BaseURL: srv.URL}).Start(context.Background(), engine.StartOptions{Theme: "z"})
	assert.ErrorContains(t, err, "unknown theme")
}

func TestStartHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()
	_, err := New(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}).Start(context.Background(), engine.StartOptions{})
	assert.ErrorContains(t, err, "unexpected status")
}

func TestFactoryCreatesIndependentClients(t *testing.T) {
	f := Factory(Config{BaseURL: "http://x"})
	a, b := f(), f()
	assert.NotSame(t, a, b)
}

func TestAnswerIsNeverReplayed(t *testing.T) {
	var posts atomic.Int32
	release := make(chan struct{})
	fake := newFake()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/answer" && posts.Add(1) == 1 {
			<-release
		}
		fake.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	hc := netutil.NewClient(netutil.ClientOptions{ResponseTimeout: 50 * time.Millisecond, Retries: 2, Backoff: time.Millisecond})
	c := New(Config{BaseURL: srv.URL, HTTPClient: hc})
	_, err := c.Start(context.Background(), engine.StartOptions{Language: "pt"})
	require.NoError(t, err)
	fake.reply["/answer"] = `{"completion":"OK","step":"1","progression":"10","question":"Q2"}`

	_, err = c.Answer(context.Background(), engine.Yes)
	require.Error(t, err)
	assert.Equal(t, int32(1), posts.Load())
}

func TestDefaultHTTPClientDoesNotRetry(t *testing.T) {
	c := New(Config{})
	rt, ok := c.http.Transport.(*netutil.RetryTransport)
	require.True(t, ok)
	assert.Zero(t, rt.MaxRetries)
}
