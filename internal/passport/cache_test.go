package passport

import (
	"testing"
	"time"
)

func TestCache_PutGet(t *testing.T) {
	c := NewCache(60*time.Second, 10)
	p := &Passport{AgentID: "agt_1", Status: StatusActive}

	c.Put("agt_1", p)

	got, ok := c.Get("agt_1")
	if !ok || got.AgentID != "agt_1" {
		t.Fatalf("Get = %v, %v", got, ok)
	}
	if _, ok := c.Get("agt_missing"); ok {
		t.Error("expected miss for unknown agent")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache(60*time.Second, 10)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("agt_1", &Passport{AgentID: "agt_1"})

	now = now.Add(30 * time.Second)
	if _, ok := c.Get("agt_1"); !ok {
		t.Error("entry expired too early")
	}

	now = now.Add(31 * time.Second)
	if _, ok := c.Get("agt_1"); ok {
		t.Error("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not evicted, len = %d", c.Len())
	}
}

func TestCache_ReplaceWholesale(t *testing.T) {
	c := NewCache(60*time.Second, 10)
	c.Put("agt_1", &Passport{AgentID: "agt_1", AssuranceLevel: AssuranceL1})
	c.Put("agt_1", &Passport{AgentID: "agt_1", AssuranceLevel: AssuranceL3})

	got, _ := c.Get("agt_1")
	if got.AssuranceLevel != AssuranceL3 {
		t.Errorf("assurance = %s, want L3 (replace must be wholesale)", got.AssuranceLevel)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}

func TestCache_BoundedSize(t *testing.T) {
	c := NewCache(60*time.Second, 3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		c.Put(id, &Passport{AgentID: id})
	}
	if c.Len() > 3 {
		t.Errorf("len = %d, want <= 3", c.Len())
	}
}

func TestCache_Evict(t *testing.T) {
	c := NewCache(60*time.Second, 10)
	c.Put("agt_1", &Passport{AgentID: "agt_1"})
	c.Evict("agt_1")
	if _, ok := c.Get("agt_1"); ok {
		t.Error("entry should be gone after Evict")
	}
}
