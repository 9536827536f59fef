package pg

import (
	"testing"

	"github.com/google/uuid"
)

func TestDistNameEqualityIsNullAware(t *testing.T) {
	got := distNameEquality("$1")
	want := "distribution_name IS NOT DISTINCT FROM $1"
	if got != want {
		t.Errorf("distNameEquality(%q) = %q, want %q", "$1", got, want)
	}
}

func TestUuidArrayRendersEachID(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	got := uuidArray([]uuid.UUID{a, b})
	if len(got) != 2 || got[0] != a.String() || got[1] != b.String() {
		t.Errorf("uuidArray() = %v, want [%s %s]", got, a, b)
	}
}

func TestUuidArrayEmpty(t *testing.T) {
	got := uuidArray(nil)
	if len(got) != 0 {
		t.Errorf("uuidArray(nil) = %v, want empty slice", got)
	}
}
