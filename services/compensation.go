package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MonkyMars/gecho"
)

type undoAction struct {
	name string
	fn   func(ctx context.Context) error
}

// Compensator collects undo actions for steps that already touched a backend.
// Run executes them newest first; Discard forgets them once the work is kept.
type Compensator struct {
	mu      sync.Mutex
	logger  *gecho.Logger
	actions []undoAction
}

func NewCompensator(logger *gecho.Logger) *Compensator {
	return &Compensator{logger: logger}
}

// Push registers an undo action; safe for concurrent use
func (c *Compensator) Push(name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, undoAction{name: name, fn: fn})
}

func (c *Compensator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actions)
}

// Run executes every action in reverse order, continuing past failures, and
// returns the joined errors. The list is empty afterwards.
func (c *Compensator) Run(ctx context.Context) error {
	c.mu.Lock()
	actions := c.actions
	c.actions = nil
	c.mu.Unlock()

	var errs []error
	for i := len(actions) - 1; i >= 0; i-- {
		action := actions[i]
		if err := action.fn(ctx); err != nil {
			if c.logger != nil {
				c.logger.Warn("Compensating action failed",
					gecho.Field("action", action.name),
					gecho.Field("error", err),
				)
			}
			errs = append(errs, fmt.Errorf("%s: %w", action.name, err))
		}
	}

	return errors.Join(errs...)
}

// Discard drops all registered actions without running them
func (c *Compensator) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = nil
}
