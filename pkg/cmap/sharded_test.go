package cmap

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultShardCount},
		{-1, DefaultShardCount},
		{3, DefaultShardCount},
		{1, 1},
		{4, 4},
		{32, 32},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards=%d", tt.input), func(t *testing.T) {
			m := NewWithShards[int](tt.input)
			if m.ShardCount() != tt.expected {
				t.Errorf("NewWithShards(%d) shard count = %d, want %d",
					tt.input, m.ShardCount(), tt.expected)
			}
		})
	}
}

func TestSetAndGet(t *testing.T) {
	m := New[int]()

	m.Set("key1", 100)
	m.Set("key2", 200)

	val, ok := m.Get("key1")
	if !ok || val != 100 {
		t.Errorf("Get(key1) = (%d, %v), want (100, true)", val, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get(missing) should report absent")
	}

	m.Set("key1", 101)
	if val, _ := m.Get("key1"); val != 101 {
		t.Errorf("Get(key1) after overwrite = %d, want 101", val)
	}
}

func TestSetIfAbsent(t *testing.T) {
	m := New[string]()

	if !m.SetIfAbsent("a", "first") {
		t.Fatal("SetIfAbsent on empty key should succeed")
	}
	if m.SetIfAbsent("a", "second") {
		t.Error("SetIfAbsent on existing key should fail")
	}
	if v, _ := m.Get("a"); v != "first" {
		t.Errorf("value = %q, want first", v)
	}
}

func TestDeleteAndPop(t *testing.T) {
	m := New[int]()
	m.Set("a", 1)
	m.Set("b", 2)

	m.Delete("a")
	if m.Has("a") {
		t.Error("a should be deleted")
	}

	v, ok := m.Pop("b")
	if !ok || v != 2 {
		t.Errorf("Pop(b) = (%d, %v), want (2, true)", v, ok)
	}
	if _, ok := m.Pop("b"); ok {
		t.Error("second Pop(b) should report absent")
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
}

func TestRangeAndValues(t *testing.T) {
	m := NewWithShards[int](4)
	for i := 0; i < 20; i++ {
		m.Set(fmt.Sprintf("k%02d", i), i)
	}

	values := m.Values()
	sort.Ints(values)
	if len(values) != 20 || values[0] != 0 || values[19] != 19 {
		t.Errorf("Values() = %v", values)
	}

	seen := 0
	m.Range(func(_ string, _ int) bool {
		seen++
		return seen < 5
	})
	if seen != 5 {
		t.Errorf("Range stopped after %d items, want 5", seen)
	}
}

func TestShardDistribution(t *testing.T) {
	m := NewWithShards[int](4)
	for i := 0; i < 400; i++ {
		m.Set(fmt.Sprintf("smss-%d", i), i)
	}
	for i, s := range m.shards {
		if len(s.items) == 0 {
			t.Errorf("shard %d is empty", i)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup
	numGoroutines := 50
	numOps := 200

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				key := fmt.Sprintf("%d-%d", base, j)
				m.Set(key, j)
				m.Get(key)
				m.Has(key)
			}
		}(i)
	}
	wg.Wait()

	if m.Count() != numGoroutines*numOps {
		t.Errorf("Count() = %d, want %d", m.Count(), numGoroutines*numOps)
	}
}
