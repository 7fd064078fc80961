package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatorRequireNonEmpty(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{name: "non-empty value", value: "valid"},
		{name: "empty value", value: "", wantError: true},
		{name: "blank value", value: "   ", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.RequireNonEmpty("test_field", tt.value)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tt.wantError)
			}
		})
	}
}

func TestValidatorRanges(t *testing.T) {
	tests := []struct {
		name      string
		check     func(*Validator)
		wantError bool
	}{
		{name: "positive", check: func(v *Validator) { v.RequirePositive("k", 3) }},
		{name: "zero not positive", check: func(v *Validator) { v.RequirePositive("k", 0) }, wantError: true},
		{name: "in range", check: func(v *Validator) { v.ValidateRange("score", 60, 0, 100) }},
		{name: "above range", check: func(v *Validator) { v.ValidateRange("score", 101, 0, 100) }, wantError: true},
		{name: "float in range", check: func(v *Validator) { v.ValidateFloatRange("temperature", 0.7, 0, 2) }},
		{name: "float below range", check: func(v *Validator) { v.ValidateFloatRange("temperature", -1, 0, 2) }, wantError: true},
		{name: "allowed option", check: func(v *Validator) { v.ValidateOneOf("backend", "redis", "memory", "redis") }},
		{name: "unknown option", check: func(v *Validator) { v.ValidateOneOf("backend", "etcd", "memory", "redis") }, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			tt.check(v)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tt.wantError)
			}
		})
	}
}

func TestValidatorMultipleErrors(t *testing.T) {
	v := NewValidator()
	v.RequireNonEmpty("field1", "").
		RequirePositive("field2", -1).
		ValidateRange("field3", 100, 1, 10)

	if len(v.Errors()) != 3 {
		t.Fatalf("expected 3 errors, got %d", len(v.Errors()))
	}
	err := v.Error()
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Field != "field1" {
		t.Fatalf("expected first ValidationError to be reachable, got %v", err)
	}
	if !strings.Contains(err.Error(), "field3") {
		t.Fatalf("expected joined message to mention every field: %v", err)
	}
	if NewValidator().Error() != nil {
		t.Fatalf("empty validator should not report an error")
	}
}
