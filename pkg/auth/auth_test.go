package auth

import "testing"

func TestDeriveDeterministic(t *testing.T) {
	a := Derive("opensesame")
	b := Derive("opensesame")
	if a != b {
		t.Fatal("Derive is not deterministic")
	}
}

func TestDeriveDistinctKeysDistinctTokens(t *testing.T) {
	a := Derive("opensesame")
	b := Derive("opensesame2")
	if a == b {
		t.Fatal("distinct keys produced the same token")
	}
}

func TestVerifyMatch(t *testing.T) {
	tok := Derive("opensesame")
	if !Verify(tok, tok) {
		t.Fatal("Verify rejected identical tokens")
	}
}

func TestVerifyMismatch(t *testing.T) {
	a := Derive("opensesame")
	b := Derive("different-key")
	if Verify(a, b) {
		t.Fatal("Verify accepted distinct tokens")
	}
}
