package domain

import (
	"testing"
	"time"
)

func TestCodeSlotActive(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	slot := NewCodeSlot("123456", CodePurposeRegistration, now.Add(10*time.Minute))
	if !slot.Active(now) {
		t.Fatal("expected fresh slot to be active")
	}
	if slot.Active(now.Add(10 * time.Minute)) {
		t.Fatal("slot must not be active at its expiry instant")
	}

	slot.Used = true
	if slot.Active(now) {
		t.Fatal("used slot must not be active")
	}

	if (CodeSlot{}).Active(now) {
		t.Fatal("empty slot must not be active")
	}
}

func TestUserState(t *testing.T) {
	var missing *User
	if missing.State() != IdentityStateUnregistered {
		t.Fatalf("expected unregistered, got %s", missing.State())
	}

	user := &User{}
	if user.State() != IdentityStatePendingVerification {
		t.Fatalf("expected pending, got %s", user.State())
	}

	user.IsVerified = true
	if user.State() != IdentityStateVerified {
		t.Fatalf("expected verified, got %s", user.State())
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Jane.Doe@Example.COM "); got != "jane.doe@example.com" {
		t.Fatalf("unexpected normalized email %q", got)
	}
}

func TestSanitizedDropsSecrets(t *testing.T) {
	user := User{
		ID:           "u-1",
		PasswordHash: "hash",
		Code:         NewCodeSlot("000111", CodePurposeForgotPassword, time.Now()),
	}

	clean := user.Sanitized()
	if clean.PasswordHash != "" || clean.Code.Code != nil {
		t.Fatal("expected password hash and code slot to be dropped")
	}
	if user.PasswordHash == "" {
		t.Fatal("sanitizing must not mutate the original")
	}
}

func TestCodePurposeValid(t *testing.T) {
	if !CodePurposeRegistration.Valid() || !CodePurposeForgotPassword.Valid() {
		t.Fatal("expected known purposes to be valid")
	}
	if CodePurpose("login").Valid() {
		t.Fatal("unexpected purpose accepted")
	}
}
