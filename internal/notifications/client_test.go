package notifications

import "testing"

func TestFormatMessageAddsUrgentMarker(t *testing.T) {
	got := formatMessage("!", "Agent Offline", "Agent: `BuzzyBoi3`", PriorityUrgent)
	want := "[URGENT] ! *Agent Offline*\nAgent: `BuzzyBoi3`"
	if got != want {
		t.Errorf("formatMessage() = %q, want %q", got, want)
	}
}

func TestFormatMessageAddsHighMarker(t *testing.T) {
	got := formatMessage("#", "Battle Finished", "Requests: 100", PriorityHigh)
	want := "[!] # *Battle Finished*\nRequests: 100"
	if got != want {
		t.Errorf("formatMessage() = %q, want %q", got, want)
	}
}

func TestFormatMessageNoMarkerForDefaultPriority(t *testing.T) {
	got := formatMessage(">", "Hive Coordinator Started", "Version: v1", PriorityDefault)
	want := "> *Hive Coordinator Started*\nVersion: v1"
	if got != want {
		t.Errorf("formatMessage() = %q, want %q", got, want)
	}
}

func TestFormatMessageNoMarkerForLowOrMinPriority(t *testing.T) {
	for _, p := range []NotificationPriority{PriorityLow, PriorityMin} {
		got := formatMessage("*", "title", "body", p)
		want := "* *title*\nbody"
		if got != want {
			t.Errorf("formatMessage() with priority %q = %q, want %q", p, got, want)
		}
	}
}
