package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trace struct {
	calls []string
}

func (tr *trace) dep(name string, requires ...string) *Dependency {
	return &Dependency{
		Name:     name,
		Requires: requires,
		StartFunc: func(context.Context) error {
			tr.calls = append(tr.calls, "start "+name)
			return nil
		},
		StopFunc: func(context.Context) error {
			tr.calls = append(tr.calls, "stop "+name)
			return nil
		},
	}
}

func newStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.backoffUnit = time.Millisecond
	return s
}

func TestStartOrdersByDependency(t *testing.T) {
	tr := &trace{}
	s := newStartup(1)
	s.AddDependency(tr.dep("http", "postgres", "kafka"))
	s.AddDependency(tr.dep("kafka"))
	s.AddDependency(tr.dep("postgres"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start postgres", "start kafka", "start http"}, tr.calls)
	assert.Equal(t, StartupStatusStarted, s.Status("http"))

	tr.calls = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop http", "stop kafka", "stop postgres"}, tr.calls)
	assert.Equal(t, StartupStatusStopped, s.Status("postgres"))
}

func TestStartRetriesFailedDependency(t *testing.T) {
	tr := &trace{}
	failures := 2
	flaky := tr.dep("postgres")
	flaky.StartFunc = func(context.Context) error {
		if failures > 0 {
			failures--
			return errors.New("connection refused")
		}
		return nil
	}

	s := newStartup(3)
	s.AddDependency(flaky)
	s.AddDependency(tr.dep("http", "postgres"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start http"}, tr.calls)
	assert.Equal(t, 0, failures)
}

func TestStartGivesUp(t *testing.T) {
	s := newStartup(2)
	s.AddDependency(&Dependency{Name: "redis", StartFunc: func(context.Context) error { return errors.New("down") }})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("redis"))
}

func TestStartRejectsUnknownAndCyclicDependencies(t *testing.T) {
	tr := &trace{}
	s := newStartup(1)
	s.AddDependency(tr.dep("http", "graph"))
	assert.ErrorContains(t, s.Start(context.Background()), "unknown startup dependency 'graph'")

	s = newStartup(1)
	s.AddDependency(tr.dep("a", "b"))
	s.AddDependency(tr.dep("b", "a"))
	assert.ErrorContains(t, s.Start(context.Background()), "cycle")
}

func TestStopContinuesPastFailures(t *testing.T) {
	tr := &trace{}
	broken := tr.dep("kafka")
	broken.StopFunc = func(context.Context) error { return errors.New("flush failed") }

	s := newStartup(1)
	s.AddDependency(tr.dep("postgres"))
	s.AddDependency(broken)
	require.NoError(t, s.Start(context.Background()))

	tr.calls = nil
	assert.ErrorContains(t, s.Stop(context.Background()), "flush failed")
	assert.Equal(t, []string{"stop postgres"}, tr.calls)
}
