package besteffort_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/besteffort"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestRun_Success(t *testing.T) {
	called := false
	ok := besteffort.Run(context.Background(), testLogger(), "stamp", func(_ context.Context) error {
		called = true
		return nil
	})

	assert.True(t, ok)
	assert.True(t, called)
}

func TestRun_ErrorIsSwallowed(t *testing.T) {
	ok := besteffort.Run(context.Background(), testLogger(), "stamp", func(_ context.Context) error {
		return errors.New("db down")
	})

	assert.False(t, ok)
}

func TestRun_PanicIsSwallowed(t *testing.T) {
	assert.NotPanics(t, func() {
		ok := besteffort.Run(context.Background(), testLogger(), "notify", func(_ context.Context) error {
			panic("boom")
		})
		assert.False(t, ok)
	})
}
