// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTask struct {
	runs   atomic.Int32
	period time.Duration
}

func (c *countingTask) Name() string             { return "counting" }
func (c *countingTask) Period() time.Duration     { return c.period }
func (c *countingTask) SoftTimeout() time.Duration { return time.Second }
func (c *countingTask) Run(ctx context.Context) error {
	c.runs.Add(1)
	return nil
}

func TestSchedulerRunsRegisteredTaskRepeatedly(t *testing.T) {
	task := &countingTask{period: 10 * time.Millisecond}
	s := New(task)
	require.NoError(t, s.Start())
	time.Sleep(55 * time.Millisecond)
	require.NoError(t, s.Stop())
	assert.GreaterOrEqual(t, task.runs.Load(), int32(3))
}

func TestSchedulerStartTwiceFails(t *testing.T) {
	s := New(&countingTask{period: time.Hour})
	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Equal(t, AlreadyRunningError{}, s.Start())
}

func TestSchedulerStopWhenNotRunningFails(t *testing.T) {
	s := New()
	assert.Equal(t, NotRunningError{}, s.Stop())
}
