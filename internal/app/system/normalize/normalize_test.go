package normalize

import (
	"slices"
	"testing"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"user@example.com", "user@example.com"},
		{"USER@EXAMPLE.COM", "user@example.com"},
		{"  User@Example.Com  ", "user@example.com"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Email(tt.input)
			if got != tt.want {
				t.Errorf("Email(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Gina Smith", "Gina Smith"},
		{"  Gina   Smith  ", "Gina Smith"},
		{"", ""},
		{"UPPER", "UPPER"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Name(tt.input); got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	if got := Status("  Active "); got != "active" {
		t.Errorf("Status = %q, want active", got)
	}
}

func TestIDs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, nil},
		{"only blanks", []string{"", "  "}, nil},
		{"dedupe keeps order", []string{"Admin", "member", "ADMIN"}, []string{"admin", "member"}},
		{"trims", []string{" volunteer "}, []string{"volunteer"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IDs(tt.in); !slices.Equal(got, tt.want) {
				t.Errorf("IDs(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
