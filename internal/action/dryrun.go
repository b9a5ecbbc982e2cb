package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"go.uber.org/zap"
)

// DryRun records actions without performing them. Results are marked
// simulated and count as successful.
type DryRun struct {
	logger *zap.Logger

	mu       sync.Mutex
	executed []string
}

func NewDryRun(logger *zap.Logger) *DryRun {
	return &DryRun{logger: logger}
}

func (d *DryRun) Execute(ctx context.Context, action string, params map[string]any) (*domain.ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.executed = append(d.executed, action)
	d.mu.Unlock()

	d.logger.Info("dry-run action",
		zap.String("action", action),
		zap.Any("params", params))

	return &domain.ActionResult{
		Action:      action,
		Status:      domain.ActionStatusSimulated,
		Detail:      "dry run",
		SideEffects: []string{fmt.Sprintf("would execute %s", action)},
		ExecutedAt:  time.Now().UTC(),
	}, nil
}

// Executed returns the actions seen so far.
func (d *DryRun) Executed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.executed...)
}
