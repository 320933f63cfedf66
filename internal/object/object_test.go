package object

import "testing"

func TestDiscrimination(t *testing.T) {
	tests := []struct {
		name  string
		o     Object
		isRib bool
		raw   uint64
	}{
		{"integer zero", FromInteger(0), false, 0},
		{"integer five", FromInteger(5), false, 5},
		{"rib five", FromRib(5), true, 5},
		{"rib zero", FromRib(0), true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.o.IsRib(); got != tt.isRib {
				t.Errorf("IsRib() = %v, want %v", got, tt.isRib)
			}
			if got := tt.o.Raw(); got != tt.raw {
				t.Errorf("Raw() = %d, want %d", got, tt.raw)
			}
		})
	}
}

func TestEqualDistinguishesVariant(t *testing.T) {
	integer5 := FromInteger(5)
	rib5 := FromRib(5)

	if Equal(integer5, rib5) {
		t.Error("integer 5 and rib reference 5 must not be equal")
	}
	if !Equal(integer5, FromInteger(5)) {
		t.Error("two integer 5 objects must be equal")
	}
	if !Equal(rib5, FromRib(5)) {
		t.Error("two rib reference 5 objects must be equal")
	}
}
