package validation

import (
	"errors"
	"testing"
)

func TestValidator_City(t *testing.T) {
	v := New(1, 20)
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"trims", "  London ", "London", nil},
		{"unicode letters", "São Paulo", "São Paulo", nil},
		{"comma and hyphen", "Kingston-Upon-Hull, UK", "", ErrCityTooLong},
		{"hyphen", "Ashton-in-Makerfield", "Ashton-in-Makerfield", nil},
		{"apostrophe", "L'Aquila", "L'Aquila", nil},
		{"coordinates", "51.52,-0.11", "51.52,-0.11", nil},
		{"empty", "", "", ErrCityEmpty},
		{"whitespace only", "   ", "", ErrCityEmpty},
		{"invalid chars", "London;DROP", "", ErrCityInvalidChars},
		{"angle brackets", "<script>", "", ErrCityInvalidChars},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.City(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("City(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				if !errors.Is(err, ErrValidation) {
					t.Errorf("City(%q) error = %v, want wrapped ErrValidation", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("City(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("City(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidator_City_MinLength(t *testing.T) {
	v := New(3, 0)
	if _, err := v.City("NY"); !errors.Is(err, ErrCityTooShort) {
		t.Errorf("City(NY) error = %v, want ErrCityTooShort", err)
	}
	if _, err := v.City("Oslo"); err != nil {
		t.Errorf("City(Oslo) error = %v, want nil", err)
	}
}

func TestValidator_Struct(t *testing.T) {
	type body struct {
		City string `validate:"required"`
		Unit string `validate:"omitempty,oneof=celsius"`
	}
	v := New(0, 0)

	if err := v.Struct(body{City: "London", Unit: "celsius"}); err != nil {
		t.Errorf("Struct(valid) error = %v", err)
	}
	err := v.Struct(body{Unit: "celsius"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Struct(missing city) error = %v, want ErrValidation", err)
	}
	if err.Error() != "validation failed: city failed on required" {
		t.Errorf("Struct() error = %q", err.Error())
	}
	if err := v.Struct(body{City: "London", Unit: "kelvin"}); !errors.Is(err, ErrValidation) {
		t.Errorf("Struct(bad unit) error = %v, want ErrValidation", err)
	}
}
