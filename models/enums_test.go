package models

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to ServiceRequestStatus
		want     bool
	}{
		{ServiceRequestStatusOpen, ServiceRequestStatusAssigned, true},
		{ServiceRequestStatusOpen, ServiceRequestStatusCancelled, true},
		{ServiceRequestStatusOpen, ServiceRequestStatusCompleted, false},
		{ServiceRequestStatusOpen, ServiceRequestStatusOpen, false},

		{ServiceRequestStatusAssigned, ServiceRequestStatusCompleted, true},
		// release path
		{ServiceRequestStatusAssigned, ServiceRequestStatusOpen, true},
		{ServiceRequestStatusAssigned, ServiceRequestStatusCancelled, true},
		{ServiceRequestStatusAssigned, ServiceRequestStatusAssigned, false},

		// terminal states have no exits
		{ServiceRequestStatusCompleted, ServiceRequestStatusOpen, false},
		{ServiceRequestStatusCompleted, ServiceRequestStatusAssigned, false},
		{ServiceRequestStatusCompleted, ServiceRequestStatusCancelled, false},
		{ServiceRequestStatusCancelled, ServiceRequestStatusOpen, false},
		{ServiceRequestStatusCancelled, ServiceRequestStatusAssigned, false},
		{ServiceRequestStatusCancelled, ServiceRequestStatusCompleted, false},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if ServiceRequestStatusOpen.IsTerminal() || ServiceRequestStatusAssigned.IsTerminal() {
		t.Fatalf("open/assigned must not be terminal")
	}
	if !ServiceRequestStatusCompleted.IsTerminal() || !ServiceRequestStatusCancelled.IsTerminal() {
		t.Fatalf("completed/cancelled must be terminal")
	}
}
