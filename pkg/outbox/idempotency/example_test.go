package idempotency

import (
	"context"
	"fmt"
	"time"
)

type exampleStore struct {
	values []bool
	index  int
}

func (s *exampleStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (s *exampleStore) Set(context.Context, string, any, time.Duration) error {
	return nil
}

func (s *exampleStore) SetNX(context.Context, string, any, time.Duration) (bool, error) {
	result := false
	if s.index < len(s.values) {
		result = s.values[s.index]
	}
	s.index++
	return result, nil
}

func (s *exampleStore) IdempotencyKey(scope, id string) string {
	return "mc:idempotency:" + scope + ":" + id
}

func (s *exampleStore) Del(context.Context, ...string) error {
	return nil
}

func ExampleManager_CheckAndMarkProcessed() {
	ctx := context.Background()
	manager, _ := NewManager(&exampleStore{values: []bool{true, false}}, 7*24*time.Hour)

	for i := 0; i < 2; i++ {
		already, _ := manager.CheckAndMarkProcessed(ctx, "webhook-square", "evt-1")
		if already {
			fmt.Println("duplicate delivery acknowledged")
			continue
		}
		fmt.Println("processing event")
	}
	// Output:
	// processing event
	// duplicate delivery acknowledged
}
