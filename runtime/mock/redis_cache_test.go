package mock

import "testing"

func TestRedisCacheRoundTrip(t *testing.T) {

	cache, err := NewRedisCache()
	if err != nil {
		t.Fatalf("unexpected failure to create mock Redis: %s", err)
	}

	_, present, err := cache.GetInt("desired_count.cluster.worker")
	if err != nil {
		t.Errorf("unexpected failure to read empty cache: %s", err)
	}
	if present {
		t.Errorf("expected no value before the first set")
	}

	if err = cache.Set("desired_count.cluster.worker", 4); err != nil {
		t.Errorf("unexpected failure to set: %s", err)
	}

	value, present, err := cache.GetInt("desired_count.cluster.worker")
	if err != nil {
		t.Errorf("unexpected failure to get: %s", err)
	}
	if !present || value != 4 {
		t.Errorf("expected stored value 4, received %d (present=%t)", value, present)
	}

	if err = cache.Delete("desired_count.cluster.worker"); err != nil {
		t.Errorf("unexpected failure to delete: %s", err)
	}

	_, present, err = cache.GetInt("desired_count.cluster.worker")
	if err != nil {
		t.Errorf("unexpected failure to read after delete: %s", err)
	}
	if present {
		t.Errorf("expected no value after delete")
	}
}
