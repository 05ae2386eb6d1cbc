package domain

import (
	"testing"
	"time"
)

func TestIdempotencyStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status IdempotencyStatus
		want   bool
	}{
		{name: "processing", status: IdempotencyStatusProcessing, want: true},
		{name: "done", status: IdempotencyStatusDone, want: true},
		{name: "failed", status: IdempotencyStatusFailed, want: true},
		{name: "invalid", status: IdempotencyStatus("broken"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Fatalf("status %q valid=%v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestIdempotencyRecordExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if (IdempotencyRecord{}).Expired(now) {
		t.Fatal("record without ttl must not expire")
	}
	if !(IdempotencyRecord{TTLAt: now}).Expired(now) {
		t.Fatal("record must expire exactly at ttl")
	}
	if (IdempotencyRecord{TTLAt: now.Add(time.Second)}).Expired(now) {
		t.Fatal("record must be alive before ttl")
	}
}

func TestScopedIdempotencyKeyAndHash(t *testing.T) {
	if got := ScopedIdempotencyKey("user-1", "abc"); got != "user-1:abc" {
		t.Fatalf("unexpected scoped key: %s", got)
	}
	if HashRequest([]byte(`{"a":1}`)) != HashRequest([]byte(`{"a":1}`)) {
		t.Fatal("hash must be stable")
	}
	if HashRequest([]byte(`{"a":1}`)) == HashRequest([]byte(`{"a":2}`)) {
		t.Fatal("different bodies must produce different hashes")
	}
}
