package account

import (
	"testing"

	"github.com/smppsim/smppsim/internal/smpppdu"
)

func TestAddAndLookup(t *testing.T) {
	s := NewStore()
	if err := s.Add("client1", "secret", smpppdu.BindTX, smpppdu.BindRX); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	acct, ok := s.Lookup("client1")
	if !ok {
		t.Fatalf("expected to find client1")
	}
	if acct.SystemID != "client1" {
		t.Errorf("SystemID = %q, want client1", acct.SystemID)
	}
	if !acct.Allows(smpppdu.BindTX) {
		t.Errorf("expected BindTX to be allowed")
	}
	if !acct.Allows(smpppdu.BindRX) {
		t.Errorf("expected BindRX to be allowed")
	}
	if acct.Allows(smpppdu.BindTRX) {
		t.Errorf("expected BindTRX not to be allowed")
	}
}

func TestLookupMissing(t *testing.T) {
	s := NewStore()
	if _, ok := s.Lookup("nope"); ok {
		t.Errorf("expected no account for an unregistered system_id")
	}
}

func TestCheckPassword(t *testing.T) {
	s := NewStore()
	if err := s.Add("client1", "correct-password", smpppdu.BindTRX); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	acct, _ := s.Lookup("client1")

	if !acct.CheckPassword("correct-password") {
		t.Errorf("expected the correct password to verify")
	}
	if acct.CheckPassword("wrong-password") {
		t.Errorf("expected an incorrect password to fail verification")
	}
}

func TestAddOverwritesExistingAccount(t *testing.T) {
	s := NewStore()
	_ = s.Add("client1", "old-password", smpppdu.BindTX)
	_ = s.Add("client1", "new-password", smpppdu.BindTRX)

	acct, _ := s.Lookup("client1")
	if acct.CheckPassword("old-password") {
		t.Errorf("expected the old password to no longer verify")
	}
	if !acct.CheckPassword("new-password") {
		t.Errorf("expected the new password to verify")
	}
	if acct.Allows(smpppdu.BindTX) {
		t.Errorf("expected the old bind kinds to be replaced, not merged")
	}
	if !acct.Allows(smpppdu.BindTRX) {
		t.Errorf("expected the new bind kind to be allowed")
	}
}
