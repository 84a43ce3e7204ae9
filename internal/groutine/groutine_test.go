package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_PropagatesName(t *testing.T) {
	names := make(chan string, 1)

	Go(nil, "worker-42", func(ctx context.Context) {
		names <- GetName(ctx)
	})

	select {
	case name := <-names:
		assert.Equal(t, "worker-42", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine MUST run")
	}
}

func TestGoSafe_RecoversPanic(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	errs := make(chan error, 1)
	GoSafe(context.Background(), "boom", logger, func(ctx context.Context) {
		panic("kaboom")
	}, func(err error) {
		errs <- err
	})

	select {
	case err := <-errs:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		assert.Contains(t, err.Error(), "kaboom")
	case <-time.After(time.Second):
		t.Fatal("panic handler MUST be called")
	}
}

func TestGetName_Empty(t *testing.T) {
	assert.Equal(t, "", GetName(nil)) //nolint:staticcheck // nil context is handled explicitly
	assert.Equal(t, "", GetName(context.Background()))
}
