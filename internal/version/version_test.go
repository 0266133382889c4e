package version

import "testing"

func TestString(t *testing.T) {
	Version, Commit, BuildTime = "1.2.3", "abc1234", "2026-01-02T03:04:05Z"
	t.Cleanup(func() { Version, Commit, BuildTime = "dev", "unknown", "unknown" })

	if got := String(); got != "1.2.3 (abc1234) built 2026-01-02T03:04:05Z" {
		t.Errorf("String() = %q", got)
	}
	if got := Info()["commit"]; got != "abc1234" {
		t.Errorf("Info()[commit] = %q, want abc1234", got)
	}
}
