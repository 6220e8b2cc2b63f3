package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// itemJob runs fn on one item
type itemJob[T, R any] struct {
	item T
	fn   func(context.Context, T) (R, error)
}

// ItemResult is the outcome of processing one item
type ItemResult[T, R any] struct {
	Item  T
	Value R
	Error error
}

// GetError returns the error from the item result
func (r *ItemResult[T, R]) GetError() error {
	return r.Error
}

// Execute executes the item job
func (j *itemJob[T, R]) Execute(ctx context.Context) Result {
	v, err := j.fn(ctx, j.item)
	return &ItemResult[T, R]{Item: j.item, Value: v, Error: err}
}

// Map applies fn to every item on the pool. Results are in item order.
func Map[T, R any](ctx context.Context, p *Pool, items []T, fn func(context.Context, T) (R, error)) []*ItemResult[T, R] {
	jobs := make([]Job, len(items))
	for i, item := range items {
		jobs[i] = &itemJob[T, R]{item: item, fn: fn}
	}

	results := p.Run(ctx, jobs)

	out := make([]*ItemResult[T, R], len(results))
	for i, r := range results {
		out[i] = r.(*ItemResult[T, R])
	}
	return out
}

// ReadLines reads a list file (one entry per line), skipping blanks and
// '#' comments and dropping duplicates.
func ReadLines(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return lines, nil
}
