package parser

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrEmptyPrice is returned when no numeric text is left after cleaning.
var ErrEmptyPrice = errors.New("price text is empty")

var titleCaser = cases.Title(language.English)

// ValidateRecord ensures the extractor captured the required fields.
func ValidateRecord(r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("record missing name")
	}
	return nil
}

var (
	priceNumber = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)
	// Hex, exponent or a second decimal point right after the number.
	priceNotation = regexp.MustCompile(`^(?:\.\d|[xX][0-9A-Fa-f]|[eEpP][-+]?\d)`)
)

// NormalizePrice returns the first number in price without thousands
// separators, e.g. "Rs. 1,299" becomes "1299". It returns "" when there is
// no number or the number is written in a notation prices never use.
func NormalizePrice(price string) string {
	loc := priceNumber.FindStringIndex(price)
	if loc == nil {
		return ""
	}
	if priceNotation.MatchString(price[loc[1]:]) {
		return ""
	}
	return strings.ReplaceAll(price[loc[0]:loc[1]], ",", "")
}

// ParsePrice turns listing price text into a number.
func ParsePrice(text string) (float64, error) {
	cleaned := NormalizePrice(text)
	if cleaned == "" {
		return 0, ErrEmptyPrice
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", text, err)
	}
	return value, nil
}

// NormalizeText collapses runs of whitespace and trims the result.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ResolveURL resolves a raw href/src value against the page URL.
func ResolveURL(base *url.URL, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url reference")
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url reference %q: %w", raw, err)
	}
	if base == nil {
		if !ref.IsAbs() {
			return "", fmt.Errorf("relative reference %q without base url", raw)
		}
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}

// RatingToNumeric converts the textual star rating to a numeric scale.
func RatingToNumeric(rating string) int {
	switch strings.TrimSpace(rating) {
	case "Zero":
		return 0
	case "One":
		return 1
	case "Two":
		return 2
	case "Three":
		return 3
	case "Four":
		return 4
	case "Five":
		return 5
	default:
		return 0
	}
}

// CategoryFromURL derives a readable category from one path segment,
// e.g. segment 2 of "/ar-sa/electronics-gaming" is "Electronics Gaming".
// Segments are counted from 1.
func CategoryFromURL(u *url.URL, segment int) string {
	if u == nil || segment <= 0 {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if segment > len(parts) {
		return ""
	}
	part := strings.TrimSpace(parts[segment-1])
	if part == "" {
		return ""
	}
	part = strings.NewReplacer("-", " ", "_", " ").Replace(part)
	return titleCaser.String(part)
}
