package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunnerStopsOnFailure(t *testing.T) {
	errFail := errors.New("fail")
	r := NewRunner()
	r.Go(
		NamedRun("waiter", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		RunFunc(func(ctx context.Context) error {
			return errFail
		}),
	)
	err := r.Wait()
	require.Error(t, err)
	require.True(t, errors.Is(err, errFail))
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner()
	r.Go(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	r.Stop()
	require.NoError(t, r.Wait())
}

type closeCh chan struct{}

func (c closeCh) Close() error {
	close(c)
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(closeCh)
	go func() {
		time.Sleep(time.Millisecond)
		cancel()
	}()
	err := RunWithContextCloser(ctx, c, func() error {
		<-c
		return errors.New("closed")
	})
	require.Equal(t, context.Canceled, err)
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Aggregate())
	e1, e2 := errors.New("e1"), errors.New("e2")
	errs.Add(nil, e1)
	require.Equal(t, "e1", errs.Aggregate().Error())
	errs.Add(e2)
	err := errs.Aggregate()
	require.Equal(t, "Multiple errors:\ne1\ne2", err.Error())
	require.True(t, errors.Is(err, e2))
}
