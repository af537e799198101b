package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipelinePostFindsThenRecordsAdvice(t *testing.T) {
	idx := New(Config{RecordsPerChapter: 8, CacheChapters: 4})
	p := NewPipeline(idx, nil, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan Result, 4)
	go p.Run(ctx, func(r Result) { results <- r })

	require.NoError(t, p.Submit(ctx, Request{Operation: OpPost, Name: name(1), Advice: Advice{PBN: 10}}))
	first := waitResult(t, results)
	require.NoError(t, first.Err)
	require.False(t, first.Found, "first post of a new name has no prior advice")

	require.NoError(t, p.Submit(ctx, Request{Operation: OpPost, Name: name(1), Advice: Advice{PBN: 20}}))
	second := waitResult(t, results)
	require.NoError(t, second.Err)
	require.True(t, second.Found)
	require.Equal(t, uint64(10), second.Advice.PBN, "second post reports the advice recorded by the first")

	require.NoError(t, p.Submit(ctx, Request{Operation: OpQuery, Name: name(1)}))
	third := waitResult(t, results)
	require.True(t, third.Found)
	require.Equal(t, uint64(20), third.Advice.PBN)
}

func TestPipelineCloseStopsProcessing(t *testing.T) {
	idx := New(Config{RecordsPerChapter: 8, CacheChapters: 4})
	p := NewPipeline(idx, nil, 0)
	p.Close()

	err := p.Submit(context.Background(), Request{Operation: OpQuery, Name: name(1)})
	require.Error(t, err)
}

func waitResult(t *testing.T, ch chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pipeline result")
		return Result{}
	}
}
