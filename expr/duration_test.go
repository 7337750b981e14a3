package expr

import "testing"

func TestParseWindow(t *testing.T) {
	cases := []struct {
		in      string
		seconds int64
	}{
		{"30s", 30},
		{"5m", 300},
		{"48h", 172800},
		{"7d", 604800},
		{"2w", 1209600},
	}
	for _, tc := range cases {
		w, err := ParseWindow(tc.in)
		if err != nil {
			t.Errorf("ParseWindow(%q) failed: %v", tc.in, err)
			continue
		}
		if w.Seconds() != tc.seconds {
			t.Errorf("ParseWindow(%q) = %d seconds, expected %d", tc.in, w.Seconds(), tc.seconds)
		}
		if w.String() != tc.in {
			t.Errorf("ParseWindow(%q).String() = %q", tc.in, w.String())
		}
	}
}

func TestParseWindowInvalid(t *testing.T) {
	cases := []string{"", "48", "h", "48H", "4.5h", "-1h", "48 h", "48hr"}
	for _, in := range cases {
		if _, err := ParseWindow(in); err == nil {
			t.Errorf("ParseWindow(%q) should have failed", in)
		}
	}
}
