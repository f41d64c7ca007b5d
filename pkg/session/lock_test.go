package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/actdata/pkg/adapters/memory"
	"github.com/aretw0/actdata/pkg/registry"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(memory.NewStore(), registry.NewRegistry())
	ctx := context.Background()
	count := 1000

	for i := 0; i < count; i++ {
		id := fmt.Sprintf("doc-%d", i)
		_, _ = mgr.Create(ctx, id)
		_, _ = mgr.Open(ctx, id)
		_ = mgr.Delete(ctx, id)
	}

	if lockCount := len(mgr.locks); lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", lockCount)
	}
}
