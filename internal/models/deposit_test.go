package models

import "testing"

func TestIsValidDepositTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		{DepositStatusDeposited, DepositStatusClaimed, true},
		{DepositStatusClaimed, DepositStatusDeposited, false},
		{DepositStatusClaimed, DepositStatusClaimed, false},
		{DepositStatusDeposited, DepositStatusDeposited, false},
		{"nonexistent", DepositStatusClaimed, false},
		{DepositStatusDeposited, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidDepositTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidDepositTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllDepositStatusesHaveTransitionEntry(t *testing.T) {
	for _, status := range []string{DepositStatusDeposited, DepositStatusClaimed} {
		if _, ok := ValidDepositTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidDepositTransitions map", status)
		}
	}
}

func TestClaimedIsTerminal(t *testing.T) {
	if n := len(ValidDepositTransitions[DepositStatusClaimed]); n != 0 {
		t.Errorf("claimed should have no transitions, got %d", n)
	}
}
