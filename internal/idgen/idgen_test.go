package idgen

import (
	"strings"
	"testing"
	"time"
)

func TestNewPushJobIDHasExpectedPrefix(t *testing.T) {
	id := NewPushJobID()
	if !strings.HasPrefix(id, "push_") {
		t.Fatalf("id %q missing push_ prefix", id)
	}
	if len(id) != len("push_")+26 {
		t.Fatalf("id %q has unexpected length %d, want %d", id, len(id), len("push_")+26)
	}
}

func TestNewPushJobIDIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewPushJobID()
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNewPushJobIDsAreLexicallySortableByTime(t *testing.T) {
	first := NewPushJobID()
	time.Sleep(2 * time.Millisecond)
	second := NewPushJobID()
	if first >= second {
		t.Fatalf("expected first id %q to sort before second id %q", first, second)
	}
}

func TestNowUTCReturnsUTCLocation(t *testing.T) {
	now := NowUTC()
	if now.Location() != time.UTC {
		t.Fatalf("Location() = %v, want UTC", now.Location())
	}
}
