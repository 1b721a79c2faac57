package artifact

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending_to_processing", StatusPending, StatusProcessing, true},
		{"pending_to_failed", StatusPending, StatusFailed, true},
		{"pending_to_completed", StatusPending, StatusCompleted, false},
		{"processing_to_completed", StatusProcessing, StatusCompleted, true},
		{"processing_to_failed", StatusProcessing, StatusFailed, true},
		{"completed_is_terminal", StatusCompleted, StatusProcessing, false},
		{"failed_is_terminal", StatusFailed, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	if Terminal(StatusPending) || Terminal(StatusProcessing) {
		t.Errorf("pending/processing must not be terminal")
	}
	if !Terminal(StatusCompleted) || !Terminal(StatusFailed) {
		t.Errorf("completed/failed must be terminal")
	}
}
