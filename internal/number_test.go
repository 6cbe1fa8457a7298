package internal

import "testing"

func TestParseNumber(t *testing.T) {
	tests := []struct {
		input any
		want  float64
	}{
		{"$1,200.50", 1200.50},
		{"n/a", 0},
		{"", 0},
		{nil, 0},
		{"  42 ", 42},
		{"-17.5", -17.5},
		{"(1,000)", 1000},
		{"1.2.3", 1.2},
		{"12-3", 12},
		{"--5", 0},
		{"-", 0},
		{".5", 0.5},
		{"€ 3 400", 3400},
		{"1e3", 1000},
		{"1E-3", 0.001},
		{"1.5E+20", 1.5e20},
		{"-2.5e-4", -0.00025},
		{"+7", 7},
		{"1e999", 0},
		{"$1e3", 13},
		{float64(9.25), 9.25},
		{int64(-3), -3},
		{7, 7},
		{true, 0},
	}

	for _, tt := range tests {
		if got := ParseNumber(tt.input); got != tt.want {
			t.Errorf("ParseNumber(%#v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestToNumber(t *testing.T) {
	if f, ok := ToNumber("12.5"); !ok || f != 12.5 {
		t.Errorf("ToNumber(12.5) = (%v, %v)", f, ok)
	}
	if _, ok := ToNumber("$12"); ok {
		t.Error("ToNumber should not strip currency symbols")
	}
	if f, ok := ToNumber(3); !ok || f != 3 {
		t.Errorf("ToNumber(3) = (%v, %v)", f, ok)
	}
	if _, ok := ToNumber(nil); ok {
		t.Error("ToNumber(nil) should not be numeric")
	}
}
