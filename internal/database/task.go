package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/examarena/internal/tasks"
)

// TaskProvider deals tasks from the tasks table.
type TaskProvider struct{}

// Pick returns a random active task matching f.
func (TaskProvider) Pick(ctx context.Context, f tasks.Filters) (tasks.Task, error) {
	f = f.Normalize()
	where := []string{"active"}
	var args []interface{}
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("subject", f.Subject)
	add("topic", f.Topic)
	add("difficulty", f.Difficulty)

	q := `SELECT id, subject, topic, difficulty, prompt, answer, kind FROM tasks WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY random() LIMIT 1`

	var t tasks.Task
	var id int64
	err := DB.QueryRow(ctx, q, args...).Scan(&id, &t.Subject, &t.Topic, &t.Difficulty, &t.Prompt, &t.Answer, &t.Kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return tasks.Task{}, tasks.ErrNoTasks
	}
	if err != nil {
		return tasks.Task{}, fmt.Errorf("failed to pick task: %w", err)
	}
	t.ID = &id
	t.Active = true
	return t, nil
}

// Options returns the distinct subjects and topics of active tasks.
func (TaskProvider) Options(ctx context.Context) (tasks.Options, error) {
	opts := tasks.Options{Difficulties: append([]string(nil), tasks.Difficulties...)}
	var err error
	if opts.Subjects, err = distinct(ctx, "subject"); err != nil {
		return opts, err
	}
	if opts.Topics, err = distinct(ctx, "topic"); err != nil {
		return opts, err
	}
	return opts, nil
}

// distinct lists the non-empty values of an active-task column. col is never user input.
func distinct(ctx context.Context, col string) ([]string, error) {
	q := fmt.Sprintf(`SELECT DISTINCT %[1]s FROM tasks WHERE active AND %[1]s <> '' ORDER BY %[1]s`, col)
	rows, err := DB.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s values: %w", col, err)
	}
	vals, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list %s values: %w", col, err)
	}
	return vals, nil
}
