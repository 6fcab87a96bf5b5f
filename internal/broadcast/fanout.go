package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
)

var _ target.Broadcaster = Fanout(nil)

// Fanout publishes to every broadcaster in order. One failing sink does not
// stop the rest; the errors are joined.
type Fanout []target.Broadcaster

func (f Fanout) Publish(ctx context.Context, topic string, snapshot target.Target) error {
	var errs []error
	for i, b := range f {
		if b == nil {
			continue
		}
		if err := b.Publish(ctx, topic, snapshot); err != nil {
			errs = append(errs, fmt.Errorf("broadcaster %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
