package database

import "testing"

func TestMaskDSN(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"postgres://bot:hunter2@db:5432/scanmap", "postgres://bot:***@db:5432/scanmap"},
		{"postgres://bot@db:5432/scanmap", "postgres://bot@db:5432/scanmap"},
		{"postgres://db:5432/scanmap", "postgres://db:5432/scanmap"},
		{"://not-a-url", "***"},
	}
	for _, tc := range cases {
		if got := maskDSN(tc.in); got != tc.want {
			t.Errorf("maskDSN(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
