package route

import "testing"

func TestParseType(t *testing.T) {
	got, err := ParseType([]string{"output", "Builtin", " available "})
	if err != nil {
		t.Fatal(err)
	}
	if want := Output | Builtin | Available; got != want {
		t.Errorf("ParseType = %s, want %s", got, want)
	}
	if _, err := ParseType([]string{"loud"}); err == nil {
		t.Error("unknown flag accepted")
	}
}

func TestTypeString(t *testing.T) {
	if got := (Output | Wired).String(); got != "output|wired" {
		t.Errorf("String() = %q", got)
	}
	if got := Type(0).String(); got != "unknown" {
		t.Errorf("zero String() = %q", got)
	}
	if !(Output | Available).Has(Available) || Output.Has(Output|Available) {
		t.Error("Has is wrong")
	}
}
