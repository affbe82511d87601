package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/api/member/login":             "/api/member/login",
		"/api/admin/members/abc":        "/api/admin/members/:id",
		"/api/admin/admins/abc":         "/api/admin/admins/:id",
		"/api/admin/admins/abc/unlock":  "/api/admin/admins/:id/unlock",
		"/api/admin/audit-log?limit=10": "/api/admin/audit-log",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
