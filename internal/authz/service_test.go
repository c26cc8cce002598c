package authz

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzServiceTest(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	return svc
}

func TestBuiltinRolesSplitBusinessAndInfluencer(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("second bootstrap should be idempotent: %v", err)
	}

	cases := []struct {
		role   string
		obj    string
		act    string
		expect bool
	}{
		{"business", "/offer.create", "post", true},
		{"business", "/coupon.claim", "POST", false},
		{"influencer", "/coupon.claim", "POST", true},
		{"influencer", "/redemption.refund", "POST", false},
		{"influencer", "/payout.summary", "GET", true},
		{"business", "/payout.summary", "GET", true},
		{"business", "/reconcile.run", "POST", false},
		{"influencer", "/payout.summary", "POST", false},
	}
	for _, tc := range cases {
		allow, err := svc.EnforceRole(tc.role, tc.obj, tc.act)
		if err != nil {
			t.Fatalf("enforce %s %s failed: %v", tc.role, tc.obj, err)
		}
		if allow != tc.expect {
			t.Fatalf("enforce %s %s %s want %v got %v", tc.role, tc.act, tc.obj, tc.expect, allow)
		}
	}
}

func TestGrantAndRevokeRolePolicy(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	if err := svc.GrantRolePolicy("business", "/reconcile.status", "GET"); err != nil {
		t.Fatalf("grant policy failed: %v", err)
	}
	allow, err := svc.EnforceRole("business", "/reconcile.status", "GET")
	if err != nil || !allow {
		t.Fatalf("granted policy should allow: allow=%v err=%v", allow, err)
	}

	policies, err := svc.GetRolePolicies("business")
	if err != nil {
		t.Fatalf("get role policies failed: %v", err)
	}
	found := map[string]bool{}
	for _, p := range policies {
		found[p.Action+" "+p.Object] = true
	}
	if !found["GET /reconcile.status"] || !found["GET /payout.summary"] {
		t.Fatalf("policies should include granted and inherited entries: %+v", policies)
	}

	if err := svc.RevokeRolePolicy("business", "/reconcile.status", "GET"); err != nil {
		t.Fatalf("revoke policy failed: %v", err)
	}
	allow, err = svc.EnforceRole("business", "/reconcile.status", "GET")
	if err != nil || allow {
		t.Fatalf("revoked policy should deny: allow=%v err=%v", allow, err)
	}
}

func TestNormalizeRoleAndObject(t *testing.T) {
	if got, _ := NormalizeRole(" Business "); got != "role:business" {
		t.Fatalf("normalize role got %s", got)
	}
	if _, err := NormalizeRole("role:"); err == nil {
		t.Fatalf("empty role should fail")
	}
	if got := NormalizeObject("payout.summary"); got != "/payout.summary" {
		t.Fatalf("normalize object got %s", got)
	}
	if got := NormalizeAction(" get "); got != "GET" {
		t.Fatalf("normalize action got %s", got)
	}
}
