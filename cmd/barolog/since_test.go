package main

import (
	"testing"
	"time"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"all", 0, false},
		{"24", 24, false},
		{"0", 0, false},
		{"90m", 2, false},
		{"36h", 36, false},
		{"-3", 0, true},
		{"-1h", 0, true},
		{"whenever", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSince(tt.in, now)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestParseSince_Natural(t *testing.T) {
	now := time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC)

	got, err := parseSince("yesterday", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got <= 0 || got > 48 {
		t.Errorf("expected a window within two days, got %dh", got)
	}
}
