package sysinfo

import "testing"

func TestString(t *testing.T) {
	s := SysInfo{Platform: "ubuntu", RAM: "16 GB"}
	if got := s.String(); got != "ubuntu / 16 GB" {
		t.Fatalf("got %q", got)
	}
	if got := (SysInfo{}).String(); got != "" {
		t.Fatalf("empty info should render empty, got %q", got)
	}
}

func TestCollectIsStable(t *testing.T) {
	if Collect() != Collect() {
		t.Fatal("Collect must return the cached value")
	}
}
