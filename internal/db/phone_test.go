package db

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"13800000000":      "13800000000",
		"138-0000-0000":    "13800000000",
		" 138 0000 0000 ":  "13800000000",
		"+86 138 0000 000": "861380000000",
		"ext.":             "",
		"":                 "",
	}
	for input, want := range cases {
		if got := NormalizePhone(input); got != want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", input, got, want)
		}
	}
}
