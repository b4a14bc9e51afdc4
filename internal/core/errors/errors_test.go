package errors

import (
	"errors"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "resource not found")
		if err.Error() != "[NOT_FOUND] resource not found" {
			t.Errorf("expected [NOT_FOUND] resource not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("permission denied")
		err := Wrap(original, CodeIO, "read dependency")
		expected := "[IO_ERROR] read dependency: permission denied"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
		if !errors.Is(err, original) {
			t.Error("expected wrapped error to unwrap to original")
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeUnresolvedReference, "2 unresolved references")
		if !IsCode(err, CodeUnresolvedReference) {
			t.Error("expected IsCode to return true for CodeUnresolvedReference")
		}
		if IsCode(err, CodeAnalysisErrors) {
			t.Error("expected IsCode to return false for CodeAnalysisErrors")
		}
	})

	t.Run("AddContext", func(t *testing.T) {
		err := AddContext(New(CodeAnalysisErrors, "1 error found"), CtxCount, 1)
		v, ok := ContextValue(err, CtxCount)
		if !ok || v != 1 {
			t.Fatalf("expected count context 1, got %v (ok=%v)", v, ok)
		}

		plain := AddContext(errors.New("boom"), CtxPath, "a.html")
		if !IsCode(plain, CodeInternal) {
			t.Fatalf("expected plain error to be wrapped as internal, got %v", plain)
		}
	})
}
