package ports

import (
	"context"
	"errors"

	"github.com/aretw0/statestack/pkg/domain"
)

// FanOut publishes every snapshot to each publisher in order. Errors are joined; a failing
// publisher does not stop the others. Deletes reach the publishers that are also
// SnapshotDeleters.
func FanOut(publishers ...SnapshotPublisher) SnapshotSink {
	return fanOut(publishers)
}

type fanOut []SnapshotPublisher

func (f fanOut) Publish(ctx context.Context, snap domain.StackSnapshot) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanOut) Delete(ctx context.Context, agent domain.AgentID) error {
	var errs []error
	for _, p := range f {
		d, ok := p.(SnapshotDeleter)
		if !ok {
			continue
		}
		if err := d.Delete(ctx, agent); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
