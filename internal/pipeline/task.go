// Package pipeline models build tasks and runs them.
//
// A Task is a named unit with no state of its own. Leaf tasks wrap a
// function; Series and Parallel compose tasks into ordered phases and
// concurrent groups. A Runner executes any task, applying one error policy to
// every leaf: recoverable failures are reported through a notifier and the
// pipeline moves on, fatal failures stop the enclosing series.
package pipeline

import (
	"context"
	"fmt"
)

// RunFunc is the body of a leaf task.
type RunFunc func(ctx context.Context) error

type kind int

const (
	kindLeaf kind = iota
	kindSeries
	kindParallel
)

// Task is a named, invokable unit of the build pipeline.
type Task struct {
	Name        string
	Description string

	run      RunFunc
	outputs  []Output
	kind     kind
	children []*Task
}

// New creates a leaf task.
func New(name, description string, run RunFunc, outputs ...Output) *Task {
	return &Task{
		Name:        name,
		Description: description,
		run:         run,
		outputs:     outputs,
		kind:        kindLeaf,
	}
}

// Series composes tasks that run one after another. A fatal error in one
// child prevents the rest from starting.
func Series(name string, tasks ...*Task) *Task {
	return &Task{
		Name:        name,
		Description: "runs " + joinNames(tasks, " -> "),
		kind:        kindSeries,
		children:    tasks,
	}
}

// Parallel composes tasks that start together and are all awaited. It fails
// when two children declare overlapping outputs, since nothing coordinates
// their writes.
func Parallel(name string, tasks ...*Task) (*Task, error) {
	for i := 0; i < len(tasks); i++ {
		for j := i + 1; j < len(tasks); j++ {
			if a, b, ok := firstOverlap(tasks[i].Outputs(), tasks[j].Outputs()); ok {
				return nil, fmt.Errorf("parallel group %q: tasks %q and %q both write to %s (%s vs %s)",
					name, tasks[i].Name, tasks[j].Name, a.Dir, a, b)
			}
		}
	}

	return &Task{
		Name:        name,
		Description: "runs " + joinNames(tasks, " + ") + " in parallel",
		kind:        kindParallel,
		children:    tasks,
	}, nil
}

// Outputs returns what the task writes, including everything its children
// write.
func (t *Task) Outputs() []Output {
	out := append([]Output(nil), t.outputs...)
	for _, c := range t.children {
		out = append(out, c.Outputs()...)
	}
	return out
}

func joinNames(tasks []*Task, sep string) string {
	s := ""
	for i, t := range tasks {
		if i > 0 {
			s += sep
		}
		s += t.Name
	}
	return s
}
