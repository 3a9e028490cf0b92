// Package akinator implements engine.Engine against the Akinator web game.
package akinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/akibot/core/logger"
	"github.com/m3rciful/akibot/core/netutil"
	"github.com/m3rciful/akibot/game/engine"
)

const (
	userAgent   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxBodySize = 1 << 20

	completionOK      = "OK"
	completionTimeout = "KO - TIMEOUT"
)

var (
	// ErrNotStarted is returned by Answer and Back before a successful Start.
	ErrNotStarted = errors.New("akinator: game not started")
	// ErrTimeout is returned when the remote game session expired.
	ErrTimeout = errors.New("akinator: remote session timed out")

	sessionRe   = regexp.MustCompile(`#session'\)\.val\('(.+?)'\)`)
	signatureRe = regexp.MustCompile(`#signature'\)\.val\('(.+?)'\)`)
	questionRe  = regexp.MustCompile(`<p class="question-text" id="question-label">(.+?)</p>`)

	themeIDs = map[engine.Theme]string{
		engine.ThemeCharacters: "1",
		engine.ThemeAnimals:    "14",
		engine.ThemeObjects:    "2",
	}
	answerIDs = map[engine.Answer]string{
		engine.Yes:         "0",
		engine.No:          "1",
		engine.IDK:         "2",
		engine.Probably:    "3",
		engine.ProbablyNot: "4",
	}
)

// Config configures clients created by New and Factory.
type Config struct {
	// BaseURL overrides https://<lang>.akinator.com.
	BaseURL    string
	HTTPClient *http.Client
}

// Client is a single Akinator game. It is not safe for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string

	uri       string
	themeID   string
	childMode string

	session             string
	signature           string
	step                int
	progression         float64
	stepLastProposition string
	question            string
}

// New returns an unstarted game client.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = newHTTPClient()
	}
	return &Client{http: hc, baseURL: strings.TrimRight(cfg.BaseURL, "/")}
}

// newHTTPClient never retries: answers advance the remote game.
func newHTTPClient() *http.Client {
	return netutil.NewClient(netutil.ClientOptions{ResponseTimeout: 10 * time.Second, Retries: -1})
}

// Factory returns an engine.Factory producing clients that share one HTTP client.
func Factory(cfg Config) engine.Factory {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newHTTPClient()
	}
	return func() engine.Engine { return New(cfg) }
}

// Start opens a new game and returns its first question.
func (c *Client) Start(ctx context.Context, opts engine.StartOptions) (engine.State, error) {
	lang := strings.TrimSpace(opts.Language)
	if lang == "" {
		lang = "en"
	}
	theme := opts.Theme
	if theme == "" {
		theme = engine.ThemeCharacters
	}
	themeID, ok := themeIDs[theme]
	if !ok {
		return engine.State{}, fmt.Errorf("akinator: unknown theme %q", theme)
	}

	c.uri = c.baseURL
	if c.uri == "" {
		c.uri = "https://" + lang + ".akinator.com"
	}
	c.themeID = themeID
	c.childMode = strconv.FormatBool(opts.ChildMode)

	body, err := c.post(ctx, "start", "/game", url.Values{
		"cm":  {c.childMode},
		"sid": {c.themeID},
	})
	if err != nil {
		return engine.State{}, err
	}
	page := string(body)
	session, sig, question := firstMatch(sessionRe, page), firstMatch(signatureRe, page), firstMatch(questionRe, page)
	if session == "" || sig == "" || question == "" {
		return engine.State{}, fmt.Errorf("akinator: start: unexpected game page")
	}

	c.session, c.signature = session, sig
	c.step, c.progression, c.stepLastProposition = 0, 0, ""
	c.question = html.UnescapeString(question)
	return c.state(), nil
}

// Answer sends the player's reply and returns the next question or a proposal.
func (c *Client) Answer(ctx context.Context, a engine.Answer) (engine.State, error) {
	if c.session == "" {
		return engine.State{}, ErrNotStarted
	}
	id, ok := answerIDs[a]
	if !ok {
		return engine.State{}, fmt.Errorf("akinator: answer: %w: %q", engine.ErrUnknownAnswer, a)
	}
	form := c.form()
	form.Set("answer", id)
	form.Set("step_last_proposition", c.stepLastProposition)

	resp, err := c.call(ctx, "answer", "/answer", form)
	if err != nil {
		return engine.State{}, err
	}
	if resp.IDProposition != "" {
		c.stepLastProposition = strconv.Itoa(c.step)
		st := c.state()
		st.ReadyToGuess = true
		st.Proposal = &engine.Proposal{
			ID:          string(resp.IDProposition),
			Name:        strings.TrimSpace(string(resp.NameProposition)),
			Description: strings.TrimSpace(string(resp.DescriptionProposition)),
			PhotoURL:    strings.TrimSpace(string(resp.Photo)),
		}
		return st, nil
	}
	if err := c.apply(resp); err != nil {
		return engine.State{}, fmt.Errorf("akinator: answer: %w", err)
	}
	return c.state(), nil
}

// Back undoes the last answer and returns the previous question.
func (c *Client) Back(ctx context.Context) (engine.State, error) {
	if c.session == "" {
		return engine.State{}, ErrNotStarted
	}
	if c.step == 0 {
		return engine.State{}, engine.ErrCannotGoBack
	}
	resp, err := c.call(ctx, "back", "/cancel_answer", c.form())
	if err != nil {
		return engine.State{}, err
	}
	if err := c.apply(resp); err != nil {
		return engine.State{}, fmt.Errorf("akinator: back: %w", err)
	}
	return c.state(), nil
}

func (c *Client) state() engine.State {
	return engine.State{Question: c.question, Progress: c.progression, Step: c.step}
}

func (c *Client) form() url.Values {
	return url.Values{
		"step":        {strconv.Itoa(c.step)},
		"progression": {strconv.FormatFloat(c.progression, 'f', -1, 64)},
		"sid":         {c.themeID},
		"cm":          {c.childMode},
		"session":     {c.session},
		"signature":   {c.signature},
	}
}

// flexString accepts JSON strings and numbers alike.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

type response struct {
	Completion string     `json:"completion"`
	Step       flexString `json:"step"`
	Progress   flexString `json:"progression"`
	Question   flexString `json:"question"`

	IDProposition          flexString `json:"id_proposition"`
	NameProposition        flexString `json:"name_proposition"`
	DescriptionProposition flexString `json:"description_proposition"`
	Photo                  flexString `json:"photo"`
}

func (c *Client) apply(r response) error {
	step, err := strconv.Atoi(strings.TrimSpace(string(r.Step)))
	if err != nil {
		return fmt.Errorf("bad step %q", r.Step)
	}
	progress, err := strconv.ParseFloat(strings.TrimSpace(string(r.Progress)), 64)
	if err != nil {
		return fmt.Errorf("bad progression %q", r.Progress)
	}
	if strings.TrimSpace(string(r.Question)) == "" {
		return errors.New("empty question")
	}
	c.step = step
	c.progression = min(max(progress, 0), 100)
	c.question = html.UnescapeString(string(r.Question))
	return nil
}

func (c *Client) call(ctx context.Context, op, path string, form url.Values) (response, error) {
	body, err := c.post(ctx, op, path, form)
	if err != nil {
		return response{}, err
	}
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return response{}, fmt.Errorf("akinator: %s: decode response: %w", op, err)
	}
	switch r.Completion {
	case completionOK, "":
		return r, nil
	case completionTimeout:
		return response{}, ErrTimeout
	default:
		return response{}, fmt.Errorf("akinator: %s: completion %q", op, r.Completion)
	}
}

func (c *Client) post(ctx context.Context, op, path string, form url.Values) ([]byte, error) {
	start := time.Now()
	encoded := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uri+path, strings.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("akinator: %s: %w", op, err)
	}
	// Without GetBody a retrying transport cannot replay the POST.
	req.GetBody = nil
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("akinator: %s: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))

	logger.Debug(ctx, logger.CompEngine, "engine.http",
		slog.String("op", op),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Duration("duration", time.Since(start)),
	)
	if err != nil {
		return nil, fmt.Errorf("akinator: %s: read body: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("akinator: %s: unexpected status %s", op, resp.Status)
	}
	return body, nil
}

func firstMatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}
