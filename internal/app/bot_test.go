package app

import "testing"

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in, command, arg string
	}{
		{"/status", "/status", ""},
		{"/run mychan", "/run", "mychan"},
		{"/run_all", "/run_all", ""},
		{"/run@clipcast_bot mychan", "/run", "mychan"},
		{"  /reset_history  mychan  ", "/reset_history", "mychan"},
		{"", "", ""},
	}
	for _, tc := range cases {
		command, arg := splitCommand(tc.in)
		if command != tc.command || arg != tc.arg {
			t.Errorf("splitCommand(%q) = (%q, %q), want (%q, %q)",
				tc.in, command, arg, tc.command, tc.arg)
		}
	}
}
