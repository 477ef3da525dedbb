package fixtures

import (
	"context"
	"fmt"
)

// Service runs until ctx ends.
type Service interface {
	Run(ctx context.Context) error
}

type Worker struct{}

func (w *Worker) Run(ctx context.Context) error {
	logStart()
	return helper(ctx)
}

func helper(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("nil context")
	}
	fmt.Println("running")
	return nil
}

func logStart() {
	fmt.Println("start")
}
