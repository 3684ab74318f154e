// Package leaderboard runs a refresh: every student's decks are fetched from AnkiWeb,
// combined with their quiz scores and ranked.
package leaderboard

import (
	"ankiboard/internal/components/assert"
	"ankiboard/internal/components/chrono"
	"ankiboard/internal/components/telemetry"
	"ankiboard/internal/courses"
	"ankiboard/internal/scoring"
	"ankiboard/internal/scrapers/ankiweb"
	"ankiboard/internal/snapshot"
	"ankiboard/internal/stats"
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	report_fetch_student = "leaderboard.fetch-student"
	report_refresh       = "leaderboard.refresh"
)

const DefaultWorkers = 3

type Student struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s Student) HasCredentials() bool {
	return s.Username != "" && s.Password != ""
}

// QuizSource returns the quiz scores per student and course, see notion.Client.
type QuizSource interface {
	FetchScores(ctx context.Context, courseNames []string) (map[string]map[string]float64, error)
}

// Notifier publishes a ranking, see discord.Notifier.
type Notifier interface {
	NotifyRanking(ctx context.Context, board scoring.Board, course string, includeDelta bool) error
}

// SnapshotStore remembers the previous counts of each student, see snapshot.Store.
type SnapshotStore interface {
	PreviousAll(ctx context.Context, students []string) (snapshot.Counts, error)
	Save(ctx context.Context, counts snapshot.Counts) error
}

type Options struct {
	AnkiWeb ankiweb.Options
	Courses []string
	Rules   courses.Rules
	// Workers bounds the number of concurrent AnkiWeb sessions, it defaults to DefaultWorkers.
	Workers int
	Weights scoring.Weights

	// Quizzes, Notifier and Snapshots are optional.
	Quizzes   QuizSource
	Notifier  Notifier
	Snapshots SnapshotStore
}

type Leaderboard struct {
	opts Options
	time chrono.TimeAPI
	tel  telemetry.API
}

func New(opts Options, time chrono.TimeAPI, tel telemetry.API) *Leaderboard {
	assert.NotNil(time)
	assert.NotNil(tel)

	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	return &Leaderboard{
		opts: opts,
		time: time,
		tel:  tel,
	}
}

// FetchStudent runs one fetch cycle for a student: a fresh AnkiWeb session is opened,
// used for a single deck fetch and closed. It never fails, a student whose decks could
// not be fetched gets an all-zero result whose notes say why.
func (l *Leaderboard) FetchStudent(ctx context.Context, student Student) stats.Result {
	if !student.HasCredentials() {
		result := stats.NewResult(l.opts.Courses)
		result.Notef("no AnkiWeb credentials configured")
		return result
	}

	client, err := ankiweb.NewClient(l.opts.AnkiWeb, l.tel)
	if err != nil {
		l.tel.ReportBroken(report_fetch_student, fmt.Errorf("new client: %w", err), student.Name)
		result := stats.NewResult(l.opts.Courses)
		result.Notef("could not create AnkiWeb client: %v", err)
		return result
	}
	defer client.Logout(context.WithoutCancel(ctx))

	err = client.Login(ctx, student.Username, student.Password)
	if err != nil {
		result := stats.NewResult(l.opts.Courses)
		result.Notef("login failed: %v", err)
		return result
	}

	root, fetchNotes, fetchErr := client.FetchDeckTree(ctx)
	result := stats.Aggregate(root, l.opts.Courses, l.opts.Rules)

	notes := append([]string{}, fetchNotes...)
	if fetchErr != nil {
		notes = append(notes, fmt.Sprintf("could not fetch decks: %v", fetchErr))
	}
	result.Notes = append(notes, result.Notes...)
	result.Fetched = fetchErr == nil
	return result
}

// FetchAll fetches every student with at most Workers sessions open at a time. The
// results are in the same order as students.
func (l *Leaderboard) FetchAll(ctx context.Context, students []Student) []stats.Result {
	results := make([]stats.Result, len(students))

	var group errgroup.Group
	group.SetLimit(l.opts.Workers)
	for i, student := range students {
		group.Go(func() error {
			results[i] = l.FetchStudent(ctx, student)
			return nil
		})
	}
	group.Wait()

	return results
}

type Report struct {
	UpdatedAt time.Time
	// Results maps a student name to their fetch result.
	Results map[string]stats.Result
	Quizzes scoring.Quizzes
	Board   scoring.Board
	// Notes are about the refresh as a whole, per student notes are in Results.
	Notes []string
}

func (r *Report) notef(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

// Refresh fetches every student, ranks them and saves the new snapshots. The rankings
// named in notify are published when a Notifier is configured. Only a cancelled context
// makes it fail, every other problem ends up in the report's notes.
func (l *Leaderboard) Refresh(ctx context.Context, students []Student, notify []string) (Report, error) {
	report := Report{
		Results: make(map[string]stats.Result, len(students)),
	}

	results := l.FetchAll(ctx, students)
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	anki := make(scoring.Counts, len(students))
	// only fetched counts are compared against, and replace, the previous snapshot
	fetched := make(scoring.Counts, len(students))
	var fetchedNames []string
	for i, student := range students {
		report.Results[student.Name] = results[i]
		anki[student.Name] = results[i].Counts()
		if results[i].Fetched {
			fetched[student.Name] = anki[student.Name]
			fetchedNames = append(fetchedNames, student.Name)
		}
	}

	if l.opts.Quizzes != nil {
		quizzes, err := l.opts.Quizzes.FetchScores(ctx, l.opts.Courses)
		if err != nil {
			l.tel.ReportWarning(report_refresh, fmt.Errorf("quiz scores: %w", err))
			report.notef("could not fetch quiz scores: %v", err)
		}
		report.Quizzes = quizzes
	}

	var previous scoring.Counts
	if l.opts.Snapshots != nil {
		prev, err := l.opts.Snapshots.PreviousAll(ctx, fetchedNames)
		if err != nil {
			l.tel.ReportWarning(report_refresh, fmt.Errorf("previous snapshots: %w", err))
			report.notef("could not read previous snapshots: %v", err)
		}
		previous = prev
	}

	report.Board = scoring.Calculate(anki, report.Quizzes, l.opts.Courses, previous, l.opts.Weights)
	report.UpdatedAt = l.time.Now()

	if l.opts.Snapshots != nil && len(fetched) > 0 {
		err := l.opts.Snapshots.Save(ctx, fetched)
		if err != nil {
			l.tel.ReportWarning(report_refresh, fmt.Errorf("save snapshots: %w", err))
			report.notef("could not save snapshots: %v", err)
		}
	}

	if l.opts.Notifier != nil {
		for _, course := range notify {
			err := l.opts.Notifier.NotifyRanking(ctx, report.Board, course, previous != nil)
			if err != nil {
				report.notef("could not notify the %s ranking: %v", course, err)
			}
		}
	}

	l.tel.ReportCount(report_refresh, int64(len(students)))
	return report, nil
}
