package dataset

import (
	"errors"
	"testing"
)

func TestDetectAddressColumnVocabulary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers []string
		want    string
	}{
		{"exact email", []string{"Name", "Email", "Phone"}, "Email"},
		{"exact e-mail", []string{"Name", "E-Mail"}, "E-Mail"},
		{"exact to", []string{"Name", "To"}, "To"},
		{"exact recipient", []string{"Recipient", "Notes"}, "Recipient"},
		{"email address phrase", []string{"Name", "Email Address"}, "Email Address"},
		{"first match wins", []string{"To", "Email"}, "To"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectAddressColumn(tt.headers, nil)
			if !ok {
				t.Fatalf("DetectAddressColumn(%v): no column found", tt.headers)
			}
			if got != tt.want {
				t.Errorf("DetectAddressColumn(%v): got %q, want %q", tt.headers, got, tt.want)
			}
		})
	}
}

func TestDetectAddressColumnSubstringBeatsValueSampling(t *testing.T) {
	t.Parallel()

	headers := []string{"Name", "Contact Email", "Phone"}
	rows := []Record{
		// Phone holds an address-shaped value, but the name-substring
		// layer runs first and must win.
		{"Name": "Ana", "Contact Email": "", "Phone": "oops@example.com"},
	}

	got, ok := DetectAddressColumn(headers, rows)
	if !ok || got != "Contact Email" {
		t.Errorf("got %q (ok=%v), want %q", got, ok, "Contact Email")
	}
}

func TestDetectAddressColumnByValueSampling(t *testing.T) {
	t.Parallel()

	headers := []string{"Name", "Contact"}
	rows := []Record{
		{"Name": "Ana", "Contact": "not-an-address"},
		{"Name": "Bo", "Contact": "bo@example.com"},
	}

	got, ok := DetectAddressColumn(headers, rows)
	if !ok || got != "Contact" {
		t.Errorf("got %q (ok=%v), want %q", got, ok, "Contact")
	}
}

func TestDetectAddressColumnSamplingBounded(t *testing.T) {
	t.Parallel()

	headers := []string{"Contact"}
	rows := make([]Record, 0, 12)
	for i := 0; i < 11; i++ {
		rows = append(rows, Record{"Contact": "n/a"})
	}
	// Address only appears past the 10-row sample window.
	rows = append(rows, Record{"Contact": "late@example.com"})

	if got, ok := DetectAddressColumn(headers, rows); ok {
		t.Errorf("got %q, want no detection beyond the sample window", got)
	}
}

func TestDetectAddressColumnNone(t *testing.T) {
	t.Parallel()

	headers := []string{"Name", "Company"}
	rows := []Record{{"Name": "Ana", "Company": "Acme"}}

	if got, ok := DetectAddressColumn(headers, rows); ok {
		t.Errorf("got %q, want no detection", got)
	}
}

func TestResolveAddressLayering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{"lowercase email key", Record{"email": "a@b.com", "Contact": "x"}, "a@b.com"},
		{"capitalized Email key", Record{"Email": "a@b.com", "Contact": "x"}, "a@b.com"},
		{"value pattern match", Record{"Contact": "a@b.com"}, "a@b.com"},
		{"key substring fallback", Record{"Work Mail": "not-strict-shape"}, "not-strict-shape"},
		{"email key beats pattern", Record{"email": "first@b.com", "Alt": "other@b.com"}, "first@b.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveAddress(tt.rec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveAddressFailure(t *testing.T) {
	t.Parallel()

	_, err := ResolveAddress(Record{"Name": "Ana"})
	if !errors.Is(err, ErrNoAddress) {
		t.Errorf("got %v, want ErrNoAddress", err)
	}

	// An empty email field falls through every layer.
	_, err = ResolveAddress(Record{"Name": "Ana", "email": ""})
	if !errors.Is(err, ErrNoAddress) {
		t.Errorf("got %v, want ErrNoAddress", err)
	}
}

func TestIsEmailAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"a@b.com", true},
		{"first.last@sub.domain.org", true},
		{"no-at-sign", false},
		{"spaces in@b.com", false},
		{"missing@tld", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsEmailAddress(tt.in); got != tt.want {
			t.Errorf("IsEmailAddress(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}
