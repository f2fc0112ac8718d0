package cache

import "testing"

func TestMetricsCacheAddAccumulates(t *testing.T) {
	c := New()
	c.Add("app1", KindTotalReceivers, 5)
	c.Add("app1", KindTotalReceivers, 3)

	v, ok := c.Get("app1", KindTotalReceivers)
	if !ok {
		t.Fatalf("expected key to be present")
	}
	if v != 8 {
		t.Fatalf("got %d, want 8", v)
	}
}

func TestMetricsCacheGetMiss(t *testing.T) {
	c := New()
	if _, ok := c.Get("nope", KindTotalReceivers); ok {
		t.Fatalf("expected miss on unseen key")
	}
	if s, ok := c.GetString("nope", KindTotalReceivers); ok || s != "" {
		t.Fatalf("expected empty string, false on GetString miss, got %q, %v", s, ok)
	}
}

func TestMetricsCacheSetOverwrites(t *testing.T) {
	c := New()
	c.Set("app1", KindServedVariants, 2)
	c.Set("app1", KindServedVariants, 9)

	v, _ := c.Get("app1", KindServedVariants)
	if v != 9 {
		t.Fatalf("got %d, want 9", v)
	}
}

func TestMetricsCacheKeysAreIsolatedByAppAndKind(t *testing.T) {
	c := New()
	c.Add("app1", KindTotalReceivers, 1)
	c.Add("app2", KindTotalReceivers, 1)
	c.Add("app1", KindServedVariants, 1)

	if v, _ := c.Get("app1", KindTotalReceivers); v != 1 {
		t.Fatalf("app1 receivers = %d, want 1", v)
	}
	if v, _ := c.Get("app2", KindTotalReceivers); v != 1 {
		t.Fatalf("app2 receivers = %d, want 1", v)
	}
	if v, _ := c.Get("app1", KindServedVariants); v != 1 {
		t.Fatalf("app1 served = %d, want 1", v)
	}
}

func TestMetricsCacheEvict(t *testing.T) {
	c := New()
	c.Set("app1", KindTotalReceivers, 5)
	c.Set("app1", KindAppOpenedCounter, 2)
	c.Set("app2", KindTotalReceivers, 9)

	c.Evict("app1")

	if _, ok := c.Get("app1", KindTotalReceivers); ok {
		t.Fatalf("expected app1 receivers evicted")
	}
	if _, ok := c.Get("app1", KindAppOpenedCounter); ok {
		t.Fatalf("expected app1 appOpenedCounter evicted")
	}
	if v, ok := c.Get("app2", KindTotalReceivers); !ok || v != 9 {
		t.Fatalf("expected app2 unaffected by app1 eviction, got %d, %v", v, ok)
	}
}
