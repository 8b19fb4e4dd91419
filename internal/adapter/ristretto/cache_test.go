package ristretto

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/Weaver/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

func TestCache(t *testing.T) {
	c, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, "repos:1", []byte("listing"), time.Minute); err != nil {
			t.Fatal(err)
		}
		val, found, err := c.Get(ctx, "repos:1")
		if err != nil || !found || string(val) != "listing" {
			t.Fatalf("got %q found=%v err=%v", val, found, err)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		if _, found, _ := c.Get(ctx, "repos:404"); found {
			t.Fatal("expected miss")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, "repos:2", []byte("x"), time.Minute)
		if err := c.Delete(ctx, "repos:2"); err != nil {
			t.Fatal(err)
		}
		if _, found, _ := c.Get(ctx, "repos:2"); found {
			t.Fatal("expected miss after Delete")
		}
	})
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for zero size")
	}
}
