// Package notion reads quiz scores from a Notion database.
package notion

import (
	"ankiboard/internal/components/assert"
	"ankiboard/internal/components/telemetry"
	"ankiboard/internal/courses"
	"ankiboard/pkg/restyutil"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_query_database = "client.query-database"
	report_fetch_scores   = "client.fetch-scores"
)

const (
	DefaultBaseUrl = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
	defaultTimeout = time.Second * 30
	// notion allows an average of 3 requests per second per integration
	requestsPerSecond = 3
)

// TotalKey holds the sum of every score of a student, whatever its course.
const TotalKey = "_total"

var (
	ErrInvalidToken     = errors.New("notion: invalid or expired token")
	ErrDatabaseNotFound = errors.New("notion: database not found, check its id and the integration's permissions")
)

// RequestError is any other non-200 answer.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("notion: HTTP %d: %s", e.Status, e.Message)
}

// property names tried in order for each column of the quiz database
var (
	studentProps = []string{"Nombre", "Estudiante", "Name", "Student", "Alumno", "Participante"}
	courseProps  = []string{"Curso", "Course", "Materia", "Subject", "Asignatura"}
	scoreProps   = []string{"Puntaje", "Score", "Puntos", "Points", "Calificacion", "Nota", "Resultado"}
)

type Options struct {
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl    string
	Token      string
	DatabaseId string
	// Timeout defaults to 30 seconds.
	Timeout time.Duration
}

type Client struct {
	http       *resty.Client
	databaseId string
	tel        telemetry.API
}

func NewClient(opts Options, tel telemetry.API) *Client {
	assert.NotEmptyStr(opts.Token)
	assert.NotEmptyStr(opts.DatabaseId)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("notion", tel)

	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	httpClient.SetAuthToken(opts.Token)
	httpClient.SetHeader("Notion-Version", apiVersion)
	httpClient.SetTimeout(opts.Timeout)

	rateLimiter := rate.NewLimiter(requestsPerSecond, requestsPerSecond)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})
	telemetry.InstrumentResty(httpClient, tel)
	restyutil.InstrumentClient(httpClient, nil, nil)

	return &Client{
		http:       httpClient,
		databaseId: opts.DatabaseId,
		tel:        tel,
	}
}

type RichText struct {
	PlainText string `json:"plain_text"`
	Text      struct {
		Content string `json:"content"`
	} `json:"text"`
}

func (r RichText) String() string {
	if r.Text.Content != "" {
		return r.Text.Content
	}
	return r.PlainText
}

type computedNumber struct {
	Type   string   `json:"type"`
	Number *float64 `json:"number"`
}

type named struct {
	Name string `json:"name"`
}

// Property is the subset of a page property this package understands.
type Property struct {
	Type     string          `json:"type"`
	Title    []RichText      `json:"title"`
	RichText []RichText      `json:"rich_text"`
	Select   *named          `json:"select"`
	People   []named         `json:"people"`
	Number   *float64        `json:"number"`
	Formula  *computedNumber `json:"formula"`
	Rollup   *computedNumber `json:"rollup"`
}

// Text returns the first fragment of a title, rich_text, select or people property.
func (p Property) Text() string {
	switch p.Type {
	case "title":
		if len(p.Title) > 0 {
			return p.Title[0].String()
		}
	case "rich_text":
		if len(p.RichText) > 0 {
			return p.RichText[0].String()
		}
	case "select":
		if p.Select != nil {
			return p.Select.Name
		}
	case "people":
		if len(p.People) > 0 {
			return p.People[0].Name
		}
	}
	return ""
}

// Value returns the value of a number property, or of a formula or rollup evaluating
// to a number. Anything else is 0.
func (p Property) Value() float64 {
	var computed *computedNumber
	switch p.Type {
	case "number":
		if p.Number != nil {
			return *p.Number
		}
		return 0
	case "formula":
		computed = p.Formula
	case "rollup":
		computed = p.Rollup
	}
	if computed == nil || computed.Type != "number" || computed.Number == nil {
		return 0
	}
	return *computed.Number
}

type Page struct {
	Id         string              `json:"id"`
	Properties map[string]Property `json:"properties"`
}

type QueryResponse struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

type queryRequest struct {
	StartCursor string `json:"start_cursor,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QueryDatabase fetches one page of results, cursor is empty for the first page.
func (c *Client) QueryDatabase(ctx context.Context, cursor string) (QueryResponse, error) {
	var out QueryResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(queryRequest{StartCursor: cursor}).
		SetResult(&out).
		SetError(&apiError{}).
		Post(fmt.Sprintf("/databases/%s/query", c.databaseId))
	if err != nil {
		c.tel.ReportBroken(report_query_database, fmt.Errorf("request: %w", err))
		return QueryResponse{}, err
	}

	switch res.StatusCode() {
	case http.StatusOK:
		return out, nil
	case http.StatusUnauthorized:
		c.tel.ReportBroken(report_query_database, ErrInvalidToken)
		return QueryResponse{}, ErrInvalidToken
	case http.StatusNotFound:
		c.tel.ReportBroken(report_query_database, ErrDatabaseNotFound, c.databaseId)
		return QueryResponse{}, ErrDatabaseNotFound
	}

	message := "unknown error"
	if apiErr, ok := res.Error().(*apiError); ok && apiErr.Message != "" {
		message = apiErr.Message
	} else if body := strings.TrimSpace(res.String()); body != "" {
		message = body
		if len(message) > 200 {
			message = message[:200]
		}
	}
	reqErr := &RequestError{Status: res.StatusCode(), Message: message}
	c.tel.ReportBroken(report_query_database, reqErr)
	return QueryResponse{}, reqErr
}

func firstText(props map[string]Property, names []string) string {
	for _, name := range names {
		prop, ok := props[name]
		if !ok {
			continue
		}
		if text := strings.TrimSpace(prop.Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstValue(props map[string]Property, names []string) float64 {
	for _, name := range names {
		prop, ok := props[name]
		if !ok {
			continue
		}
		if v := prop.Value(); v != 0 {
			return v
		}
	}
	return 0
}

// matchCourse finds the configured course whose normalized name contains, or is
// contained in, the course written in the database.
func matchCourse(written string, courseNames []string) (string, bool) {
	target := courses.Normalize(written)
	if target == "" {
		return "", false
	}
	for _, course := range courseNames {
		name := courses.Normalize(course)
		if strings.Contains(target, name) || strings.Contains(name, target) {
			return course, true
		}
	}
	return "", false
}

// FetchScores sums the quiz scores of every student per course. Every score counts
// towards TotalKey even when its course is not one of courseNames. Pages without a
// student name are skipped. On error the scores read so far are returned along with it.
func (c *Client) FetchScores(ctx context.Context, courseNames []string) (map[string]map[string]float64, error) {
	scores := map[string]map[string]float64{}

	cursor := ""
	for {
		res, err := c.QueryDatabase(ctx, cursor)
		if err != nil {
			return scores, err
		}

		for _, page := range res.Results {
			student := firstText(page.Properties, studentProps)
			if student == "" {
				continue
			}
			studentScores, ok := scores[student]
			if !ok {
				studentScores = map[string]float64{TotalKey: 0}
				for _, course := range courseNames {
					studentScores[course] = 0
				}
				scores[student] = studentScores
			}

			score := firstValue(page.Properties, scoreProps)
			if course, ok := matchCourse(firstText(page.Properties, courseProps), courseNames); ok {
				studentScores[course] += score
			}
			studentScores[TotalKey] += score
		}

		if !res.HasMore || res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	c.tel.ReportCount(report_fetch_scores, int64(len(scores)))
	return scores, nil
}
