package models

import "testing"

func TestOperation_IsInProgress(t *testing.T) {
	tests := []struct {
		name     string
		state    OperationState
		expected bool
	}{
		{name: "in progress", state: OperationStateInProgress, expected: true},
		{name: "succeeded", state: OperationStateSucceeded, expected: false},
		{name: "failed", state: OperationStateFailed, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := Operation{State: tt.state}
			if got := op.IsInProgress(); got != tt.expected {
				t.Errorf("IsInProgress() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestOperation_IsTerminal(t *testing.T) {
	tests := []struct {
		name     string
		state    OperationState
		expected bool
	}{
		{name: "in progress", state: OperationStateInProgress, expected: false},
		{name: "succeeded", state: OperationStateSucceeded, expected: true},
		{name: "failed", state: OperationStateFailed, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := Operation{State: tt.state}
			if got := op.IsTerminal(); got != tt.expected {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}
