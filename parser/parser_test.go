package parser

import (
	"net/url"
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  *models.Record
		wantErr bool
	}{
		{
			name:    "valid record",
			record:  &models.Record{Name: "Test Book", Link: "http://example.com"},
			wantErr: false,
		},
		{
			name:    "name only",
			record:  &models.Record{Name: "Test Book"},
			wantErr: false,
		},
		{
			name:    "missing name",
			record:  &models.Record{Name: "", Link: "http://example.com"},
			wantErr: true,
		},
		{
			name:    "whitespace name",
			record:  &models.Record{Name: "   "},
			wantErr: true,
		},
		{
			name:    "nil record",
			record:  nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.record)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "with currency symbol",
			input:    "£51.77",
			expected: "51.77",
		},
		{
			name:     "with whitespace",
			input:    "  £10.50  ",
			expected: "10.50",
		},
		{
			name:     "thousands separator",
			input:    "1,299.00",
			expected: "1299.00",
		},
		{
			name:     "currency code suffix",
			input:    "2,999.00 SAR",
			expected: "2999.00",
		},
		{
			name:     "mojibake pound",
			input:    "Â£53.74",
			expected: "53.74",
		},
		{
			name:     "abbreviation ending in a dot",
			input:    "Rs. 1,299",
			expected: "1299",
		},
		{
			name:     "trailing currency with dot",
			input:    "1,299.00 SAR.",
			expected: "1299.00",
		},
		{
			name:     "hex notation",
			input:    "0x1p4",
			expected: "",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizePrice(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizePrice(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
		wantErr  bool
	}{
		{name: "plain", input: "25.99", expected: 25.99},
		{name: "thousands", input: "1,299.00", expected: 1299.00},
		{name: "currency", input: "£51.77", expected: 51.77},
		{name: "integer", input: "SAR 15", expected: 15},
		{name: "words only", input: "Call for price", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "two dots", input: "12.3.4", wantErr: true},
		{name: "rupee abbreviation", input: "Rs. 1,299", expected: 1299},
		{name: "dirham abbreviation", input: "Dhs. 12.50", expected: 12.50},
		{name: "suffix with dot", input: "1,299.00 SAR.", expected: 1299.00},
		{name: "hex float", input: "0x1p4", wantErr: true},
		{name: "exponent", input: "1e5", wantErr: true},
		{name: "currency glued to number", input: "12.50AED", expected: 12.50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePrice(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolveURL(t *testing.T) {
	base, err := url.Parse("https://example.com/cat?page=2")
	if err != nil {
		t.Fatalf("parse base: %v", err)
	}

	tests := []struct {
		name     string
		base     *url.URL
		raw      string
		expected string
		wantErr  bool
	}{
		{name: "root relative", base: base, raw: "/p/123", expected: "https://example.com/p/123"},
		{name: "path relative", base: base, raw: "media/img.jpg", expected: "https://example.com/media/img.jpg"},
		{name: "absolute", base: base, raw: "https://cdn.example.net/a.png", expected: "https://cdn.example.net/a.png"},
		{name: "padded", base: base, raw: "  /p/9  ", expected: "https://example.com/p/9"},
		{name: "empty", base: base, raw: "", wantErr: true},
		{name: "relative without base", base: nil, raw: "/p/1", wantErr: true},
		{name: "absolute without base", base: nil, raw: "http://x.test/a", expected: "http://x.test/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveURL(tt.base, tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveURL(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ResolveURL(%q) = %q, want %q", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestRatingToNumeric(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{input: "Zero", expected: 0},
		{input: "One", expected: 1},
		{input: "Two", expected: 2},
		{input: "Three", expected: 3},
		{input: "Four", expected: 4},
		{input: "Five", expected: 5},
		{input: "Invalid", expected: 0},
		{input: "", expected: 0},
		{input: "three", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RatingToNumeric(tt.input)
			if result != tt.expected {
				t.Errorf("RatingToNumeric(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCategoryFromURL(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		segment  int
		expected string
	}{
		{name: "lulu listing", raw: "https://gcc.luluhypermarket.com/ar-sa/electronics-gaming?page=3", segment: 2, expected: "Electronics Gaming"},
		{name: "books category", raw: "https://books.toscrape.com/catalogue/category/books/historical-fiction_4/index.html", segment: 4, expected: "Historical Fiction 4"},
		{name: "out of range", raw: "https://example.com/a", segment: 3, expected: ""},
		{name: "disabled", raw: "https://example.com/a", segment: 0, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := CategoryFromURL(u, tt.segment); got != tt.expected {
				t.Errorf("CategoryFromURL(%q, %d) = %q, want %q", tt.raw, tt.segment, got, tt.expected)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "  In stock (22 available)  ", expected: "In stock (22 available)"},
		{input: "\n\t In stock\n\n", expected: "In stock"},
		{input: "", expected: ""},
	}

	for _, tt := range tests {
		if got := NormalizeText(tt.input); got != tt.expected {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
