// Package discord posts rankings to a Discord channel through a webhook.
package discord

import (
	"ankiboard/internal/components/assert"
	"ankiboard/internal/components/chrono"
	"ankiboard/internal/components/telemetry"
	"ankiboard/internal/scoring"
	"ankiboard/pkg/restyutil"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_send = "webhook.send"
)

const (
	username       = "🏆 Competencia Académica"
	footer         = "Dashboard de Competencia Académica • Medicina"
	defaultTimeout = time.Second * 15

	ColorGeneral = 0xFFD700
	ColorCourse  = 0x3A7BD5

	topRows = 5
)

var medals = []string{"🥇", "🥈", "🥉", "4️⃣", "5️⃣"}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type Footer struct {
	Text string `json:"text"`
}

type Embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields,omitempty"`
	Footer      *Footer `json:"footer,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type Message struct {
	Username string  `json:"username"`
	Embeds   []Embed `json:"embeds"`
}

// StatusError is returned when the webhook answers anything but 200 or 204.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("discord: webhook answered HTTP %d", e.Status)
}

type Notifier struct {
	http       *resty.Client
	webhookUrl string
	time       chrono.TimeAPI
	tel        telemetry.API
}

func NewNotifier(webhookUrl string, time chrono.TimeAPI, tel telemetry.API) *Notifier {
	assert.NotEmptyStr(webhookUrl)
	assert.NotNil(time)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("discord", tel)

	httpClient := resty.New()
	httpClient.SetTimeout(defaultTimeout)
	telemetry.InstrumentResty(httpClient, tel)
	restyutil.InstrumentClient(httpClient, nil, nil)

	return &Notifier{
		http:       httpClient,
		webhookUrl: webhookUrl,
		time:       time,
		tel:        tel,
	}
}

// Send posts a single embed.
func (n *Notifier) Send(ctx context.Context, embed Embed) error {
	res, err := n.http.R().
		SetContext(ctx).
		SetBody(Message{Username: username, Embeds: []Embed{embed}}).
		Post(n.webhookUrl)
	if err != nil {
		n.tel.ReportBroken(report_send, fmt.Errorf("request: %w", err))
		return err
	}
	if res.StatusCode() != http.StatusOK && res.StatusCode() != http.StatusNoContent {
		err := &StatusError{Status: res.StatusCode()}
		n.tel.ReportBroken(report_send, err)
		return err
	}
	n.tel.ReportDebug("discord notification sent", embed.Title)
	return nil
}

// NotifyRanking posts the ranking of a course, or of scoring.General.
func (n *Notifier) NotifyRanking(ctx context.Context, board scoring.Board, course string, includeDelta bool) error {
	return n.Send(ctx, RankingEmbed(board, course, includeDelta, n.time.Now()))
}

// RankingEmbed renders the top of a ranking with a medal per position.
func RankingEmbed(board scoring.Board, course string, includeDelta bool, now time.Time) Embed {
	embed := Embed{
		Title:     fmt.Sprintf("📚 Ranking de %s", course),
		Color:     ColorCourse,
		Footer:    &Footer{Text: footer},
		Timestamp: now.Format(time.RFC3339),
	}
	if course == scoring.General {
		embed.Title = "🏆 Ranking General"
		embed.Color = ColorGeneral
	}

	rows := board.Ranking(course)
	if len(rows) == 0 {
		embed.Description = "Sin datos disponibles"
		return embed
	}

	lines := make([]string, 0, topRows)
	for i, row := range rows {
		if i >= topRows {
			break
		}
		position := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			position = medals[i]
		}
		line := fmt.Sprintf("%s **%s**: %.1f pts", position, row.Student, row.Score)
		if includeDelta && row.Completed > 0 {
			line += fmt.Sprintf(" (+%d)", row.Completed)
		}
		lines = append(lines, line)
	}
	embed.Description = strings.Join(lines, "\n")

	embed.Fields = []Field{
		{Name: "📊 Total Participantes", Value: fmt.Sprint(len(rows)), Inline: true},
		{Name: "🕐 Actualizado", Value: now.Format(time.TimeOnly), Inline: true},
	}
	return embed
}
