package async

import (
	"context"
	"errors"
	"strconv"
	"testing"
)

func TestCollectGathersResults(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results, err := Collect(context.Background(), items, 3, func(_ context.Context, n int) (string, error) {
		return strconv.Itoa(n * 10), nil
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}
}

func TestCollectToleratesPartialFailure(t *testing.T) {
	boom := errors.New("quote fetch failed")
	results, err := Collect(context.Background(), []int{1, 2, 3}, 2, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(results) != 2 {
		t.Fatalf("got %d partial results, want 2", len(results))
	}
}

func TestCollectEmptyInput(t *testing.T) {
	results, err := Collect(context.Background(), nil, 4, func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	if err != nil || results != nil {
		t.Fatalf("empty input: results=%v err=%v", results, err)
	}
}

func TestCollectRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Collect(ctx, []int{1, 2, 3}, 2, func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
