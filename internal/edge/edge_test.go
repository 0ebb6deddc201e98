package edge

import "testing"

func TestArbiter_Admit(t *testing.T) {
	const second = 16_000_000

	t.Run("no sources", func(t *testing.T) {
		a := NewArbiter(2 * second)
		if _, ok := a.Active(0); ok {
			t.Error("expected no active source")
		}
	})

	t.Run("fallback alone is accepted", func(t *testing.T) {
		a := NewArbiter(2 * second)
		for i := uint64(1); i <= 3; i++ {
			if !a.Admit(KindNavigation, i*second) {
				t.Errorf("navigation edge %d rejected", i)
			}
		}
		if k, ok := a.Active(3 * second); !ok || k != KindNavigation {
			t.Errorf("Active() = %v, %v", k, ok)
		}
	})

	t.Run("fallback ignored while capture is live", func(t *testing.T) {
		a := NewArbiter(2 * second)
		if !a.Admit(KindCapture, second) {
			t.Fatal("capture edge rejected")
		}
		if a.Admit(KindNavigation, second+100_000) {
			t.Error("navigation edge must be ignored while capture is live")
		}
		if !a.Admit(KindCapture, 2*second) {
			t.Error("capture edge rejected")
		}
	})

	t.Run("fallback takes over after holdoff", func(t *testing.T) {
		a := NewArbiter(2 * second)
		a.Admit(KindCapture, second)
		if !a.Admit(KindNavigation, 4*second) {
			t.Error("navigation edge must be accepted once capture went silent")
		}
		if k, _ := a.Active(4 * second); k != KindNavigation {
			t.Errorf("Active() = %v, want navigation", k)
		}
	})

	t.Run("reset forgets sources", func(t *testing.T) {
		a := NewArbiter(2 * second)
		a.Admit(KindCapture, second)
		a.Reset()
		if !a.Admit(KindPin, second+10) {
			t.Error("pin edge rejected after reset")
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		a := NewArbiter(second)
		if a.Admit(Kind(42), 0) {
			t.Error("unknown kind admitted")
		}
	})
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		err  bool
	}{
		{"capture", KindCapture, false},
		{" PPS ", KindPPSDevice, false},
		{"gpio", KindPin, false},
		{"nmea", KindNavigation, false},
		{"ntp", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseKind(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.err && got != tt.want {
			t.Errorf("ParseKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if !tt.err && got.String() == "unknown" {
			t.Errorf("%v has no name", got)
		}
	}
}
