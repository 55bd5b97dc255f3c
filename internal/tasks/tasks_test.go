package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBank = `
tasks:
  - subject: Математика
    topic: Дроби
    difficulty: Легкая
    prompt: "1/2 + 1/4 = ?"
    answer: "0,75"
    kind: number
  - subject: Математика
    topic: Степени
    difficulty: Сложная
    prompt: "2^10 = ?"
    answer: "1024"
  - subject: Физика
    prompt: "Единица силы?"
    answer: Ньютон
    difficulty: unknown
  - subject: История
    prompt: "hidden"
    answer: "x"
    active: false
`

func TestNormalizeAnswer(t *testing.T) {
	assert.Equal(t, "3.14", NormalizeAnswer("  3,14 "))
	assert.Equal(t, "ньютон", NormalizeAnswer("НЬЮТОН"))
	assert.True(t, IsCorrect(" 0.75", "0,75"))
	assert.False(t, IsCorrect("42", "43"))
	assert.False(t, IsCorrect("", ""), "empty expected answer is never correct")
}

func TestParseBankDefaults(t *testing.T) {
	p, err := ParseBank([]byte(sampleBank))
	require.NoError(t, err)

	opts, err := p.Options(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Математика", "Физика"}, opts.Subjects)
	assert.Equal(t, []string{"Дроби", DefaultTopic, "Степени"}, opts.Topics)
	assert.Equal(t, Difficulties, opts.Difficulties)

	task, err := p.Pick(context.Background(), Filters{Subject: "Физика"})
	require.NoError(t, err)
	assert.Equal(t, DefaultDifficulty, task.Difficulty)
	assert.Equal(t, DefaultTopic, task.Topic)
	assert.Equal(t, "text", task.Kind)
	require.NotNil(t, task.ID)
}

func TestParseBankRejectsMissingAnswer(t *testing.T) {
	_, err := ParseBank([]byte("tasks:\n  - prompt: q\n"))
	assert.Error(t, err)
}

func TestPickHonoursFiltersAndActiveFlag(t *testing.T) {
	p, err := ParseBank([]byte(sampleBank))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		task, err := p.Pick(ctx, Filters{Subject: "Математика", Difficulty: DifficultyHard})
		require.NoError(t, err)
		assert.Equal(t, "1024", task.Answer)
	}

	_, err = p.Pick(ctx, Filters{Subject: "История"})
	assert.True(t, errors.Is(err, ErrNoTasks))

	task, err := p.Pick(ctx, Filters{Subject: "any", Topic: " Дроби "})
	require.NoError(t, err)
	assert.Equal(t, "0,75", task.Answer)
}

func TestPickOrPlaceholder(t *testing.T) {
	ctx := context.Background()

	empty := NewMemoryProvider(nil)
	demo := PickOrPlaceholder(ctx, empty, Filters{}, nil)
	assert.Equal(t, "42", demo.Answer)
	assert.True(t, demo.Gradable())

	none := PickOrPlaceholder(ctx, empty, Filters{Topic: "Дроби"}, nil)
	assert.False(t, none.Gradable())
	assert.Equal(t, "Дроби", none.Topic)

	assert.Equal(t, "42", PickOrPlaceholder(ctx, nil, Filters{}, nil).Answer)
}

func TestFiltersValidate(t *testing.T) {
	assert.NoError(t, Filters{Difficulty: DifficultyEasy}.Validate())
	assert.NoError(t, Filters{Subject: "any"}.Normalize().Validate())

	err := Filters{Difficulty: "Невозможная"}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidFilter))

	long := make([]rune, maxFilterLen+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, Filters{Topic: string(long)}.Validate())
}
