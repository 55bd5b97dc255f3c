package tasks

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// bankFile is the on-disk layout of a YAML task bank.
type bankFile struct {
	Tasks []Task `yaml:"tasks"`
}

// MemoryProvider serves tasks from an in-memory bank, typically loaded from YAML.
type MemoryProvider struct {
	mu    sync.RWMutex // write lock also guards rnd
	tasks []Task
	rnd   *rand.Rand
}

// NewMemoryProvider builds a provider over a copy of the given tasks.
func NewMemoryProvider(list []Task) *MemoryProvider {
	cp := make([]Task, len(list))
	copy(cp, list)
	return &MemoryProvider{
		tasks: cp,
		rnd:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// LoadBank reads a YAML task bank from path. Tasks without an explicit
// active flag are treated as active; blank difficulties and topics get defaults.
func LoadBank(path string) (*MemoryProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task bank %s: %w", path, err)
	}
	return ParseBank(data)
}

// ParseBank decodes a YAML task bank.
func ParseBank(data []byte) (*MemoryProvider, error) {
	var raw struct {
		Tasks []struct {
			Task   `yaml:",inline"`
			Active *bool `yaml:"active"`
		} `yaml:"tasks"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode task bank: %w", err)
	}
	list := make([]Task, 0, len(raw.Tasks))
	for i, rt := range raw.Tasks {
		t := rt.Task
		if t.Prompt == "" || t.Answer == "" {
			return nil, fmt.Errorf("task bank entry %d: prompt and answer are required", i)
		}
		t.Active = rt.Active == nil || *rt.Active
		t.Difficulty = NormalizeDifficulty(t.Difficulty)
		if t.Topic == "" {
			t.Topic = DefaultTopic
		}
		if t.Kind == "" {
			t.Kind = "text"
		}
		if t.ID == nil {
			id := int64(i + 1)
			t.ID = &id
		}
		list = append(list, t)
	}
	return NewMemoryProvider(list), nil
}

// Pick returns a random active task matching f.
func (p *MemoryProvider) Pick(_ context.Context, f Filters) (Task, error) {
	f = f.Normalize()
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidates []Task
	for _, t := range p.tasks {
		if t.Active && f.Matches(t) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return Task{}, ErrNoTasks
	}
	return candidates[p.rnd.IntN(len(candidates))], nil
}

// Options returns the sorted distinct subjects and topics of active tasks.
func (p *MemoryProvider) Options(_ context.Context) (Options, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	subjects := map[string]struct{}{}
	topics := map[string]struct{}{}
	for _, t := range p.tasks {
		if !t.Active {
			continue
		}
		if t.Subject != "" {
			subjects[t.Subject] = struct{}{}
		}
		if t.Topic != "" {
			topics[t.Topic] = struct{}{}
		}
	}
	return Options{
		Subjects:     sortedKeys(subjects),
		Topics:       sortedKeys(topics),
		Difficulties: append([]string(nil), Difficulties...),
	}, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
