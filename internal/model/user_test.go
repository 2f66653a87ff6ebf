package model

import (
	"testing"
	"time"
)

func TestSessionIsExpired(t *testing.T) {
	expires := time.Date(2024, time.June, 5, 12, 0, 0, 0, time.UTC)
	s := Session{UserID: "u1", Token: "tok", ExpiresAt: expires}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before", expires.Add(-time.Minute), false},
		{"at expiry", expires, true},
		{"after", expires.Add(time.Hour), true},
	}

	for _, tt := range tests {
		if got := s.IsExpired(tt.now); got != tt.want {
			t.Errorf("%s: IsExpired = %v, want %v", tt.name, got, tt.want)
		}
	}
}
