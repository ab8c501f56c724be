package logging

import "testing"

func TestNamespace_ReturnsUsableLogger(t *testing.T) {
	l := Namespace("test")
	l.Info("hello", String("k", "v"))
	l.With(Int("n", 1)).Warn("with fields")
}

func TestNop_DiscardsSilently(t *testing.T) {
	l := Nop()
	l.Error("should not panic", Err(nil))
}
