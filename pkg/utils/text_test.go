package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("ünïcödé", 7); got != "ünïcödé" {
		t.Errorf("multi-byte string within limit was cut: %s", got)
	}
	if got := Truncate("ünïcödé", 3); got != "ünï..." {
		t.Errorf("got %s", got)
	}
}
