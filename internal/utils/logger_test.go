// internal/utils/logger_test.go
package utils

import "testing"

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	base := NewLogger().(*SimpleLogger)
	child := base.WithField("component", "fetch").(*SimpleLogger)
	grandchild := child.WithField("target", "shelter").(*SimpleLogger)

	if len(base.fields) != 0 {
		t.Errorf("parent logger gained fields: %v", base.fields)
	}
	if child.fields["component"] != "fetch" || len(child.fields) != 1 {
		t.Errorf("child fields = %v", child.fields)
	}
	if grandchild.fields["component"] != "fetch" || grandchild.fields["target"] != "shelter" {
		t.Errorf("grandchild fields = %v", grandchild.fields)
	}
}

func TestWithFieldsMergesAndKeepsLevel(t *testing.T) {
	base := NewLoggerWithLevel(WarnLevel).(*SimpleLogger)
	derived := base.WithFields(map[string]interface{}{
		"component": "ocr",
		"engine":    "tesseract",
	}).(*SimpleLogger)

	if derived.level != WarnLevel {
		t.Errorf("derived level = %v, want WarnLevel", derived.level)
	}
	if len(derived.fields) != 2 {
		t.Errorf("derived fields = %v", derived.fields)
	}
}

func TestFormatFields(t *testing.T) {
	out := formatFields(map[string]interface{}{"component": "store"})
	if out != "{component=store}" {
		t.Errorf("formatFields = %q", out)
	}
}
