// client.go holds the AnkiWeb session: login through the private binary API, the
// deck-list request and logout. Decoding of the responses lives in decks.go and scan.go.

package ankiweb

import (
	"ankiboard/internal/components/assert"
	"ankiboard/internal/components/telemetry"
	"ankiboard/internal/decks"
	"ankiboard/pkg/restyutil"
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	report_client_login           = "client.login"
	report_client_logout          = "client.logout"
	report_client_fetch_deck_tree = "client.fetch-deck-tree"
	report_client_deck_page       = "client.deck-page"
	report_client_decode          = "client.decode"
)

const (
	DefaultBaseUrl = "https://ankiweb.net"

	loginPagePath = "/account/login"
	loginApiPath  = "/svc/account/login"
	deckListPath  = "/svc/decks/deck-list-info"
	deckPagePath  = "/decks/"
	logoutPath    = "/account/logout"

	contentTypeBinary = "application/octet-stream"

	defaultTimeout = time.Second * 15
	logoutTimeout  = time.Second * 5
)

type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
)

func (s State) String() string {
	if s == StateAuthenticated {
		return "authenticated"
	}
	return "anonymous"
}

type Options struct {
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl string
	// Timeout applies to every request except logout, it defaults to 15 seconds.
	Timeout time.Duration
	// RequestsPerSecond defaults to 2.
	RequestsPerSecond float64
	// CloudflareBypass wraps the transport so requests look like they come from a browser.
	CloudflareBypass bool
	// Dump receives a copy of every exchange when set, response bodies of the deck list
	// can be fed back to DecodeDeckList.
	Dump restyutil.Output
}

// Client is one AnkiWeb session. It owns its cookie jar and must not be shared between
// students, create a new Client for every fetch.
type Client struct {
	baseUrl *url.URL
	http    *resty.Client
	state   State
	tel     telemetry.API
}

func NewClient(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("ankiweb_scraper", tel)

	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	httpClient.SetHeaders(map[string]string{
		"user-agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"accept-language": "es-ES,es;q=0.9,en;q=0.8",
	})
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	httpClient.SetTimeout(opts.Timeout)

	// max burst >= requests per second just means that no requests will be dropped
	rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), int(opts.RequestsPerSecond)+1)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel)
	restyutil.InstrumentClient(httpClient, nil, opts.Dump)

	return &Client{
		baseUrl: baseUrl,
		http:    httpClient,
		tel:     tel,
	}, nil
}

func (c *Client) State() State {
	return c.state
}

// loginPayload encodes the credentials the way AnkiWeb's front-end does: field 1 is the
// email and field 2 the password, both length-delimited strings.
func loginPayload(username, password string) []byte {
	var payload []byte
	payload = protowire.AppendTag(payload, 1, protowire.BytesType)
	payload = protowire.AppendString(payload, username)
	payload = protowire.AppendTag(payload, 2, protowire.BytesType)
	payload = protowire.AppendString(payload, password)
	return payload
}

func maskUsername(username string) string {
	runes := []rune(username)
	if len(runes) <= 3 {
		return "***"
	}
	return string(runes[:3]) + "***"
}

// Login authenticates the session. The login page is visited first since the API refuses
// requests that do not carry its cookies. On failure the session stays anonymous and the
// error is an *AuthError.
func (c *Client) Login(ctx context.Context, username, password string) error {
	c.state = StateAnonymous
	masked := maskUsername(username)

	res, err := c.http.R().
		SetContext(ctx).
		Get(loginPagePath)
	if err != nil {
		c.tel.ReportBroken(
			report_client_login,
			fmt.Errorf("login page request: %w", err),
			masked,
		)
		return &AuthError{Kind: TransportError, Err: err}
	}
	if res.IsError() {
		c.tel.ReportBroken(
			report_client_login,
			fmt.Errorf("login page status: %s", res.Status()),
			masked,
		)
		return &AuthError{Kind: UnexpectedResponse, Status: res.StatusCode()}
	}

	res, err = c.http.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"content-type": contentTypeBinary,
			"referer":      c.baseUrl.JoinPath(loginPagePath).String(),
			"origin":       c.origin(),
		}).
		SetBody(loginPayload(username, password)).
		Post(loginApiPath)
	if err != nil {
		c.tel.ReportBroken(
			report_client_login,
			fmt.Errorf("login request: %w", err),
			masked,
		)
		return &AuthError{Kind: TransportError, Err: err}
	}

	switch res.StatusCode() {
	case http.StatusOK:
		c.state = StateAuthenticated
		c.tel.ReportDebug(report_client_login, "logged in", masked)
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		c.tel.ReportWarning(report_client_login, "invalid credentials", masked)
		return &AuthError{Kind: InvalidCredentials, Status: res.StatusCode()}
	default:
		c.tel.ReportBroken(
			report_client_login,
			fmt.Errorf("unexpected login status: %s", res.Status()),
			masked,
		)
		return &AuthError{Kind: UnexpectedResponse, Status: res.StatusCode()}
	}
}

func (c *Client) origin() string {
	return (&url.URL{Scheme: c.baseUrl.Scheme, Host: c.baseUrl.Host}).String()
}

// FetchDeckTree returns the student's deck tree along with notes on anything unusual
// seen while fetching and decoding it. The deck-list API is tried first, the HTML deck
// page second. When both come back empty the returned tree is an empty root and the
// error is a *FetchError, the tree is never nil.
func (c *Client) FetchDeckTree(ctx context.Context) (*decks.Node, []string, error) {
	if c.state != StateAuthenticated {
		return decks.NewRoot(), []string{"not logged in"}, ErrNotAuthenticated
	}

	var notes []string
	notef := func(format string, args ...any) {
		notes = append(notes, fmt.Sprintf(format, args...))
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"content-type": contentTypeBinary,
			"accept":       "*/*",
		}).
		SetBody([]byte{}).
		Post(deckListPath)

	var apiFailure *FetchError
	switch {
	case err != nil:
		c.tel.ReportBroken(report_client_fetch_deck_tree, fmt.Errorf("deck list request: %w", err))
		notef("deck list request failed: %v", err)
		apiFailure = &FetchError{Reason: err.Error()}
	case res.StatusCode() != http.StatusOK:
		c.tel.ReportBroken(report_client_fetch_deck_tree, fmt.Errorf("deck list status: %s", res.Status()))
		notef("deck list API answered HTTP %d", res.StatusCode())
		apiFailure = &FetchError{Status: res.StatusCode(), Reason: "deck list API error"}
	case len(res.Body()) == 0:
		notef("deck list API answered with an empty body")
		apiFailure = &FetchError{Status: res.StatusCode(), Reason: "empty deck list"}
	default:
		body := res.Body()
		root, decodeNotes := DecodeDeckList(body)
		notes = append(notes, decodeNotes...)
		if len(decodeNotes) > 0 {
			c.tel.ReportWarning(report_client_decode, decodeNotes)
		}
		notef("deck list API: %d bytes, %d decks", len(body), root.Count())
		c.tel.ReportCount(report_client_fetch_deck_tree, int64(root.Count()))
		if len(root.Children) > 0 {
			return root, notes, nil
		}
		apiFailure = &FetchError{Status: res.StatusCode(), Reason: "no decks in deck list"}
	}

	root, pageNotes, err := c.fetchDeckPage(ctx)
	notes = append(notes, pageNotes...)
	if err != nil {
		return decks.NewRoot(), notes, apiFailure
	}
	if len(root.Children) == 0 {
		return root, notes, apiFailure
	}
	return root, notes, nil
}

func (c *Client) fetchDeckPage(ctx context.Context) (*decks.Node, []string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(deckPagePath)
	if err != nil {
		c.tel.ReportBroken(report_client_deck_page, fmt.Errorf("fetch: %w", err))
		return nil, []string{fmt.Sprintf("deck page request failed: %v", err)}, err
	}
	if res.IsError() {
		err := fmt.Errorf("deck page status: %s", res.Status())
		c.tel.ReportBroken(report_client_deck_page, err)
		return nil, []string{fmt.Sprintf("deck page answered HTTP %d", res.StatusCode())}, err
	}

	root, notes, err := parseDeckPage(res.Body())
	if err != nil {
		c.tel.ReportBroken(report_client_deck_page, fmt.Errorf("parse: %w", err))
		return nil, notes, err
	}
	return root, notes, nil
}

// Logout ends the session. The remote logout is best effort, its errors are only
// reported. The cookie jar is always discarded and the session is anonymous afterwards.
func (c *Client) Logout(ctx context.Context) {
	if c.state == StateAuthenticated {
		logoutCtx, cancel := context.WithTimeout(ctx, logoutTimeout)
		_, err := c.http.R().
			SetContext(logoutCtx).
			Get(logoutPath)
		cancel()
		if err != nil {
			c.tel.ReportDebug(report_client_logout, err)
		}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		c.tel.ReportBroken(report_client_logout, fmt.Errorf("new cookie jar: %w", err))
	} else {
		c.http.SetCookieJar(jar)
	}
	c.state = StateAnonymous
}
