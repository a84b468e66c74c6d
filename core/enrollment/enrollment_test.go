package enrollment

import (
	"testing"
	"time"
)

func TestStatusGrants(t *testing.T) {
	exp := map[Status]bool{
		Active:    true,
		Completed: true,
		Suspended: false,
		Cancelled: false,
	}
	for s, want := range exp {
		if got := s.Grants(); got != want {
			t.Fatalf("%s: expected %v, got %v", s, want, got)
		}
	}
}

func TestNew(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	e := New("e1", "u1", "c1", "p1", now)

	if e.Status != Active || e.Progress != 0 || e.CompletedAt != nil || !e.EnrolledAt.Equal(now) {
		t.Fatalf("unexpected new enrollment: %+v", e)
	}
}
