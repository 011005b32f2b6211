package bootstrap

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

func testProcess(ctx context.Context) (*Process, *int) {
	code := -1
	p := newProcess(ctx, &config.Config{}, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	p.exit = func(c int) { code = c }
	return p, &code
}

func TestWaitClosesInReverseOrderAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, code := testProcess(ctx)

	var order []string
	p.OnClose("first", func() error { order = append(order, "first"); return nil })
	p.OnClose("second", func() error { order = append(order, "second"); return errors.New("ignored") })
	p.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	cancel()
	p.Wait()

	assert.Equal(t, []string{"second", "first"}, order)
	assert.Equal(t, -1, *code, "cancellation is a clean exit")
}

func TestFailingLoopStopsOthersAndExitsNonZero(t *testing.T) {
	p, code := testProcess(context.Background())
	stopped := make(chan struct{})

	p.Go("waits", func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	})
	p.Go("fails", func(context.Context) error { return errors.New("boom") })
	p.Wait()

	<-stopped
	assert.Equal(t, 1, *code)
}

func TestMustClosesAndExits(t *testing.T) {
	p, code := testProcess(context.Background())
	closed := false
	p.OnClose("db", func() error { closed = true; return nil })

	p.Must(nil, "fine")
	assert.Equal(t, -1, *code)
	assert.False(t, closed)

	p.Must(errors.New("nope"), "broken")
	assert.Equal(t, 1, *code)
	assert.True(t, closed)
}
