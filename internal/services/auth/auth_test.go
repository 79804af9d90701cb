package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "secret" {
		t.Error("Expected hash to differ from the password")
	}

	if err := h.Verify(hash, "secret"); err != nil {
		t.Errorf("Expected matching password, got %v", err)
	}
	if err := h.Verify(hash, "Secret"); !errors.Is(err, ErrMismatchedPassword) {
		t.Errorf("Expected ErrMismatchedPassword, got %v", err)
	}
	if err := h.Verify("not-a-hash", "secret"); err == nil || errors.Is(err, ErrMismatchedPassword) {
		t.Errorf("Expected malformed hash error, got %v", err)
	}
}

func TestNewBcryptHasher_CostBounds(t *testing.T) {
	tests := []struct {
		cost int
		want int
	}{
		{0, bcrypt.DefaultCost},
		{bcrypt.MinCost, bcrypt.MinCost},
		{12, 12},
		{bcrypt.MaxCost + 1, bcrypt.DefaultCost},
	}

	for _, tt := range tests {
		if got := NewBcryptHasher(tt.cost).Cost; got != tt.want {
			t.Errorf("NewBcryptHasher(%d): expected cost %d, got %d", tt.cost, tt.want, got)
		}
	}
}

func TestNewSessionToken(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	a := NewSessionToken("alice", "garage", now)
	b := NewSessionToken("alice", "garage", now)
	if a == b {
		t.Error("Expected distinct tokens for repeated logins")
	}

	prefix, suffix, ok := strings.Cut(a, ".")
	if !ok {
		t.Fatalf("Expected token with owner suffix, got %s", a)
	}
	id, err := ulid.ParseStrict(prefix)
	if err != nil {
		t.Fatalf("Expected ULID prefix, got %v", err)
	}
	if id.Time() != ulid.Timestamp(now) {
		t.Errorf("Expected timestamp %d, got %d", ulid.Timestamp(now), id.Time())
	}

	_, otherSuffix, _ := strings.Cut(NewSessionToken("alice", "attic", now), ".")
	if suffix == otherSuffix {
		t.Error("Expected owner suffix to depend on the site")
	}
}
