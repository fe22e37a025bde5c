package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// ErrMissingName is returned when an item has no extractable name.
var ErrMissingName = errors.New("item has no name")

// Extractor maps one item element to a Record using a site profile.
type Extractor struct {
	profile *config.Profile
}

// NewExtractor builds an extractor for profile. The profile is expected to
// be validated already.
func NewExtractor(profile *config.Profile) *Extractor {
	return &Extractor{profile: profile}
}

// Extract reads every configured field from item. Optional fields that are
// missing or unparsable are left absent; only a missing name yields no
// record. Panics from malformed documents are returned as errors.
func (x *Extractor) Extract(item *goquery.Selection, base *url.URL) (rec *models.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = fmt.Errorf("extract item: panic: %v", r)
		}
	}()

	if item == nil {
		return nil, fmt.Errorf("extract item: nil element")
	}

	fields := x.profile.Fields

	name, ok := readField(item, fields.Name)
	if !ok {
		return nil, ErrMissingName
	}
	name = parser.NormalizeText(name)
	if name == "" {
		return nil, ErrMissingName
	}

	rec = &models.Record{Name: name}

	if raw, ok := readField(item, fields.Link); ok {
		if link, err := parser.ResolveURL(base, raw); err == nil {
			rec.Link = link
		}
	}
	if raw, ok := readField(item, fields.Price); ok {
		if price, err := parser.ParsePrice(raw); err == nil {
			rec.Price = &price
		}
	}
	if raw, ok := readField(item, fields.Image); ok {
		if image, err := parser.ResolveURL(base, raw); err == nil {
			rec.ImageURL = image
		}
	}

	for key, field := range fields.Extra {
		raw, ok := readField(item, field)
		if !ok {
			continue
		}
		if value := applyTransform(raw, field.Transform); value != "" {
			setExtra(rec, key, value)
		}
	}
	if x.profile.CategorySegment > 0 {
		if _, set := rec.Extra["category"]; !set {
			if category := parser.CategoryFromURL(base, x.profile.CategorySegment); category != "" {
				setExtra(rec, "category", category)
			}
		}
	}

	return rec, nil
}

// Missing lists the configured optional fields that rec lacks.
func (x *Extractor) Missing(rec *models.Record) []string {
	var missing []string
	fields := x.profile.Fields
	if !fields.Link.Empty() && rec.Link == "" {
		missing = append(missing, "link")
	}
	if !fields.Price.Empty() && rec.Price == nil {
		missing = append(missing, "price")
	}
	if !fields.Image.Empty() && rec.ImageURL == "" {
		missing = append(missing, "image_url")
	}
	return missing
}

func readField(item *goquery.Selection, field config.FieldSelector) (string, bool) {
	if field.Empty() {
		return "", false
	}

	sel := item
	if field.Selector != "" {
		sel = item.Find(field.Selector).First()
		if sel.Length() == 0 {
			return "", false
		}
	}

	var value string
	if field.Attr != "" {
		attr, ok := sel.Attr(field.Attr)
		if !ok {
			return "", false
		}
		value = attr
	} else {
		value = sel.Text()
	}
	value = strings.TrimSpace(value)

	if field.Word > 0 {
		words := strings.Fields(value)
		if field.Word > len(words) {
			return "", false
		}
		value = words[field.Word-1]
	}
	return value, value != ""
}

func applyTransform(value, transform string) string {
	switch transform {
	case config.TransformRating:
		return strconv.Itoa(parser.RatingToNumeric(value))
	case config.TransformTrim:
		return parser.NormalizeText(value)
	default:
		return value
	}
}

func setExtra(rec *models.Record, key, value string) {
	if rec.Extra == nil {
		rec.Extra = make(map[string]string)
	}
	rec.Extra[key] = value
}
