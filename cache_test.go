package depot

import (
	"errors"
	"testing"
)

// TestCacheBasicOperations tests the basic operations of the SimpleCache
func TestCacheBasicOperations(t *testing.T) {
	// Create a cache with a fixed capacity
	const capacity = 10
	cache := FactoryNewCache[string](capacity)

	// Register some items
	items := []string{"item1", "item2", "item3", "item4", "item5"}
	indices := make([]int, len(items))

	for i, item := range items {
		index, err := cache.Register(item, item)
		if err != nil {
			t.Errorf("Failed to register item %s: %v", item, err)
		}
		indices[i] = index

		// Indices are dense and follow registration order
		if index != i {
			t.Errorf("Index for item %s is %d, expected %d", item, index, i)
		}
	}

	// Get items by index
	for i, item := range items {
		index, found := cache.GetIndex(item)
		if !found || index != indices[i] {
			t.Errorf("Index for item %s is %d (found %v), expected %d", item, index, found, indices[i])
		}
		if cached := cache.GetItem(index); *cached != item {
			t.Errorf("Item at index %d is %s, expected %s", index, *cached, item)
		}
	}

	// Test for non-existent item
	if _, found := cache.GetIndex("nonexistent"); found {
		t.Errorf("Found non-existent item in cache")
	}
	if cache.Len() != len(items) {
		t.Errorf("Len() = %d, want %d", cache.Len(), len(items))
	}
}

// TestCacheLimits tests capacity and duplicate keys
func TestCacheLimits(t *testing.T) {
	const capacity = 3
	cache := FactoryNewCache[int](capacity)

	for i, key := range []string{"a", "b", "c"} {
		if _, err := cache.Register(key, i); err != nil {
			t.Fatalf("Failed to register %s: %v", key, err)
		}
	}

	// Try to register one more (should fail)
	_, err := cache.Register("overflow", 100)
	var capErr CapacityError
	if !errors.As(err, &capErr) || capErr.Max != capacity {
		t.Errorf("Register past capacity error = %v", err)
	}

	// A repeated key is reported before capacity
	_, err = cache.Register("a", 1)
	var dup DuplicateSystemError
	if !errors.As(err, &dup) {
		t.Errorf("Register of duplicate key error = %v", err)
	}
}

// TestCacheClear tests the cache clear functionality
func TestCacheClear(t *testing.T) {
	cache := FactoryNewCache[string](10)

	items := []string{"item1", "item2", "item3"}
	for _, item := range items {
		if _, err := cache.Register(item, item); err != nil {
			t.Errorf("Failed to register item %s: %v", item, err)
		}
	}

	cache.Clear()

	// Verify items are gone
	for _, item := range items {
		if _, found := cache.GetIndex(item); found {
			t.Errorf("Item %s still found after cache clear", item)
		}
	}

	// Verify we can add items again, starting from zero
	for i, item := range items {
		index, err := cache.Register(item, item)
		if err != nil {
			t.Errorf("Failed to register item %s after clear: %v", item, err)
		}
		if index != i {
			t.Errorf("Index after clear = %d, want %d", index, i)
		}
	}
}
