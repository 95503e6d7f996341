package auth

import (
	"context"
	"testing"
	"time"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := "test-secret"
	claims := Claims{UserID: "u1", EmployeeID: "e1", RoleName: RoleHR}

	token, err := GenerateToken(secret, claims, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if parsed.UserID != claims.UserID || parsed.EmployeeID != claims.EmployeeID || parsed.RoleName != claims.RoleName {
		t.Fatalf("claims mismatch: %+v", parsed)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("a", Claims{UserID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("b", token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken("a", Claims{UserID: "u1"}, -time.Minute)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("a", token); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestStaticPermissions(t *testing.T) {
	ctx := context.Background()
	perms := StaticPermissions{}
	cases := []struct {
		role string
		perm string
		want bool
	}{
		{RoleEmployee, PermLeaveWrite, true},
		{RoleEmployee, PermLeaveApprove, false},
		{RoleManager, PermLeaveApprove, true},
		{RoleManager, PermLeaveAdmin, false},
		{RoleHR, PermLeaveAdmin, true},
		{"unknown", PermLeaveRead, false},
	}
	for _, tc := range cases {
		got, err := perms.HasPermission(ctx, tc.role, tc.perm)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tc.want {
			t.Fatalf("%s/%s: expected %v, got %v", tc.role, tc.perm, tc.want, got)
		}
	}
}
