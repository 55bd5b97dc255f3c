// Package tasks defines the quiz task snapshot and the providers that deal them.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// Difficulty labels as stored in the task bank.
const (
	DifficultyEasy   = "Легкая"
	DifficultyMedium = "Средняя"
	DifficultyHard   = "Сложная"

	DefaultDifficulty = DifficultyMedium
	DefaultTopic      = "Общее"
)

// Difficulties lists the known difficulty labels from easiest to hardest.
var Difficulties = []string{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Any is the filter value matching every subject, topic or difficulty.
const Any = "any"

const maxFilterLen = 100

// ErrNoTasks is returned by a Provider when no active task matches the filters.
var ErrNoTasks = errors.New("no tasks match the filters")

// ErrInvalidFilter is returned by Filters.Validate.
var ErrInvalidFilter = errors.New("invalid filter value")

// Task is an immutable snapshot of a bank task. Answer never leaves the server.
type Task struct {
	ID         *int64 `json:"id,omitempty" yaml:"id,omitempty"`
	Subject    string `json:"subject" yaml:"subject"`
	Topic      string `json:"topic" yaml:"topic"`
	Difficulty string `json:"difficulty" yaml:"difficulty"`
	Prompt     string `json:"prompt" yaml:"prompt"`
	Answer     string `json:"-" yaml:"answer"`
	Kind       string `json:"kind" yaml:"kind"`
	Active     bool   `json:"-" yaml:"-"`
}

// Gradable reports whether the task carries an answer to judge against.
// Placeholder tasks dealt when the filters match nothing are not gradable.
func (t Task) Gradable() bool {
	return t.Answer != ""
}

// Filters narrows the task pick. Empty fields mean "any".
type Filters struct {
	Subject    string `json:"subject"`
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
}

// Normalize trims every field and maps the "any" keyword to the empty string.
func (f Filters) Normalize() Filters {
	clean := func(s string) string {
		s = strings.TrimSpace(s)
		if strings.EqualFold(s, Any) {
			return ""
		}
		return s
	}
	return Filters{
		Subject:    clean(f.Subject),
		Topic:      clean(f.Topic),
		Difficulty: clean(f.Difficulty),
	}
}

// IsAny reports whether no field is set.
func (f Filters) IsAny() bool {
	n := f.Normalize()
	return n.Subject == "" && n.Topic == "" && n.Difficulty == ""
}

// Validate checks a normalized filter set.
func (f Filters) Validate() error {
	if f.Difficulty != "" && !IsDifficulty(f.Difficulty) {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidFilter, f.Difficulty)
	}
	if utf8.RuneCountInString(f.Subject) > maxFilterLen {
		return fmt.Errorf("%w: subject too long", ErrInvalidFilter)
	}
	if utf8.RuneCountInString(f.Topic) > maxFilterLen {
		return fmt.Errorf("%w: topic too long", ErrInvalidFilter)
	}
	return nil
}

// Matches reports whether t satisfies the normalized filters.
func (f Filters) Matches(t Task) bool {
	if f.Subject != "" && t.Subject != f.Subject {
		return false
	}
	if f.Topic != "" && t.Topic != f.Topic {
		return false
	}
	if f.Difficulty != "" && t.Difficulty != f.Difficulty {
		return false
	}
	return true
}

// Options lists the filter values a client may choose from.
type Options struct {
	Subjects     []string `json:"subjects"`
	Topics       []string `json:"topics"`
	Difficulties []string `json:"difficulties"`
}

// Provider deals tasks from a question bank.
type Provider interface {
	// Pick returns one active task matching the filters, or ErrNoTasks.
	Pick(ctx context.Context, f Filters) (Task, error)
	// Options returns the distinct subjects and topics of active tasks.
	Options(ctx context.Context) (Options, error)
}

// IsDifficulty reports whether s is one of the known difficulty labels.
func IsDifficulty(s string) bool {
	for _, d := range Difficulties {
		if d == s {
			return true
		}
	}
	return false
}

// NormalizeDifficulty maps unknown labels to DefaultDifficulty.
func NormalizeDifficulty(s string) string {
	s = strings.TrimSpace(s)
	if IsDifficulty(s) {
		return s
	}
	return DefaultDifficulty
}

// Demo is the task dealt when the bank holds nothing at all.
func Demo() Task {
	return Task{
		Subject:    "",
		Topic:      "Демо-задача",
		Difficulty: DefaultDifficulty,
		Prompt:     "Сколько будет 17 + 25 ? (введите число)",
		Answer:     "42",
		Kind:       "number",
		Active:     true,
	}
}

// NoMatch is the ungradable placeholder dealt when filters exclude every task.
func NoMatch(f Filters) Task {
	return Task{
		Subject:    f.Subject,
		Topic:      f.Topic,
		Difficulty: f.Difficulty,
		Prompt:     "Нет задач, подходящих под выбранные фильтры. Измените фильтры.",
		Answer:     "",
		Kind:       "none",
	}
}

// PickOrPlaceholder always returns a task: the provider's pick, Demo when nothing
// is available without filters, or NoMatch when the filters exclude everything.
// Provider failures are logged to log, or to the standard logger when log is nil.
func PickOrPlaceholder(ctx context.Context, p Provider, f Filters, log logrus.FieldLogger) Task {
	f = f.Normalize()
	if p == nil {
		return Demo()
	}
	t, err := p.Pick(ctx, f)
	if err == nil {
		if t.Topic == "" {
			t.Topic = DefaultTopic
		}
		if t.Difficulty == "" {
			t.Difficulty = DefaultDifficulty
		}
		return t
	}
	if !errors.Is(err, ErrNoTasks) {
		if log == nil {
			log = logrus.StandardLogger()
		}
		log.WithError(err).WithField("filters", f).Warn("task provider failed, dealing placeholder")
	}
	if f.IsAny() {
		return Demo()
	}
	return NoMatch(f)
}
