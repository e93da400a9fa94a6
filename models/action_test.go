package models

import (
	"errors"
	"testing"
)

func TestAction_WaitMs(t *testing.T) {
	tests := []struct {
		name string
		a    Action
		want int
	}{
		{"default", Action{Type: ActionWait}, 1000},
		{"explicit", Action{Type: ActionWait, Milliseconds: 5000}, 5000},
		{"clamped", Action{Type: ActionWait, Milliseconds: 999999}, 30000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.WaitMs(); got != tt.want {
				t.Errorf("WaitMs() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAction_ScrollAmount(t *testing.T) {
	if got := (Action{Type: ActionScroll}).ScrollAmount(); got != 500 {
		t.Errorf("ScrollAmount() default = %d, want 500", got)
	}
	if got := (Action{Type: ActionScroll, Amount: 1200}).ScrollAmount(); got != 1200 {
		t.Errorf("ScrollAmount() explicit = %d, want 1200", got)
	}
}

func TestAction_Validate(t *testing.T) {
	tests := []struct {
		name string
		a    Action
		want bool // wantErr
	}{
		{"wait ok", Action{Type: ActionWait}, false},
		{"click missing selector", Action{Type: ActionClick}, true},
		{"click ok", Action{Type: ActionClick, Selector: "#btn"}, false},
		{"type missing selector", Action{Type: ActionType, Text: "hi"}, true},
		{"executeJavascript missing script", Action{Type: ActionExecuteJS}, true},
		{"executeJavascript ok", Action{Type: ActionExecuteJS, Script: "1+1"}, false},
		{"empty type", Action{}, true},
		{"unknown type", Action{Type: "teleport"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.a.validate()
			if (msg != "") != tt.want {
				t.Errorf("validate() = %q, wantErr %v", msg, tt.want)
			}
		})
	}
}

func TestActionError_Unwrap(t *testing.T) {
	inner := errors.New("element not found")
	err := &ActionError{Index: 2, Type: ActionClick, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is(err, inner) = false, want true")
	}
	if got := err.Error(); got == "" {
		t.Error("Error() = empty string")
	}
}
