package account

import "testing"

func TestCheckPIN(t *testing.T) {
	hash := HashPIN("1234")

	if hash == "1234" {
		t.Fatal("Expected PIN to be hashed")
	}
	if !CheckPIN(hash, "1234") {
		t.Error("Expected correct PIN to verify")
	}
	if CheckPIN(hash, "4321") {
		t.Error("Expected wrong PIN to fail")
	}
	if CheckPIN(hash, "") {
		t.Error("Expected empty PIN to fail")
	}
}

func TestValidPIN(t *testing.T) {
	tests := []struct {
		pin  string
		want bool
	}{
		{"1234", true},
		{"0000", true},
		{"123", false},
		{"12345", false},
		{"12a4", false},
		{"", false},
		{"١٢٣٤", false},
	}

	for _, tt := range tests {
		if got := ValidPIN(tt.pin); got != tt.want {
			t.Errorf("ValidPIN(%q): expected %v, got %v", tt.pin, tt.want, got)
		}
	}
}
