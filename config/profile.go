package config

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/spf13/viper"
)

// PagePlaceholder marks where the page index goes in Profile.PageURL.
const PagePlaceholder = "{page}"

// Field transforms applied after a value is read.
const (
	TransformNone   = ""
	TransformTrim   = "trim"
	TransformRating = "rating"
)

// FieldSelector locates one field inside a matched item element.
type FieldSelector struct {
	// Selector is relative to the item; empty means the item itself.
	Selector string `mapstructure:"selector"`
	// Attr reads an attribute instead of the text content.
	Attr string `mapstructure:"attr"`
	// Word picks the n-th whitespace separated word (1-based), 0 keeps all.
	Word      int    `mapstructure:"word"`
	Transform string `mapstructure:"transform"`
}

// Empty reports whether the field is not configured at all.
func (f FieldSelector) Empty() bool {
	return f.Selector == "" && f.Attr == ""
}

// Fields maps record fields to selectors.
type Fields struct {
	Name  FieldSelector            `mapstructure:"name"`
	Link  FieldSelector            `mapstructure:"link"`
	Price FieldSelector            `mapstructure:"price"`
	Image FieldSelector            `mapstructure:"image"`
	Extra map[string]FieldSelector `mapstructure:"extra"`
}

// Profile is the declarative extraction schema for one site listing.
type Profile struct {
	Name    string `mapstructure:"name"`
	PageURL string `mapstructure:"page_url"`
	// Engine is the page source the site needs when none is chosen
	// explicitly; empty means colly.
	Engine          string `mapstructure:"engine"`
	ReadySelector   string `mapstructure:"ready_selector"`
	ItemSelector    string `mapstructure:"item_selector"`
	EndOnNotFound   bool   `mapstructure:"end_on_not_found"`
	CategorySegment int    `mapstructure:"category_segment"`
	Fields          Fields `mapstructure:"fields"`
}

// URLFor returns the listing URL of a page index.
func (p *Profile) URLFor(page int) string {
	index := strconv.Itoa(page)
	if strings.Contains(p.PageURL, PagePlaceholder) {
		return strings.ReplaceAll(p.PageURL, PagePlaceholder, index)
	}
	return p.PageURL + index
}

// ResolveEngine picks the page source engine: an explicit choice wins,
// then the profile's own engine, then colly.
func ResolveEngine(explicit string, p *Profile) string {
	if e := strings.ToLower(strings.TrimSpace(explicit)); e != "" {
		return e
	}
	if p != nil && p.Engine != "" {
		return p.Engine
	}
	return EngineColly
}

// ExtraNames returns the configured extra field names, plus "category"
// when category extraction is enabled, sorted.
func (p *Profile) ExtraNames() []string {
	names := make([]string, 0, len(p.Fields.Extra)+1)
	for name := range p.Fields.Extra {
		names = append(names, name)
	}
	if p.CategorySegment > 0 {
		if _, ok := p.Fields.Extra["category"]; !ok {
			names = append(names, "category")
		}
	}
	sort.Strings(names)
	return names
}

// Validate checks URLs and compiles every selector.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if p.PageURL == "" {
		return fmt.Errorf("profile %s: page url cannot be empty", p.Name)
	}
	parsed, err := url.Parse(p.URLFor(1))
	if err != nil {
		return fmt.Errorf("profile %s: invalid page url: %w", p.Name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("profile %s: page url must include a host", p.Name)
	}
	if p.ItemSelector == "" {
		return fmt.Errorf("profile %s: item selector cannot be empty", p.Name)
	}
	if _, err := cascadia.ParseGroup(p.ItemSelector); err != nil {
		return fmt.Errorf("profile %s: item selector: %w", p.Name, err)
	}
	if p.ReadySelector != "" {
		if _, err := cascadia.ParseGroup(p.ReadySelector); err != nil {
			return fmt.Errorf("profile %s: ready selector: %w", p.Name, err)
		}
	}
	switch p.Engine {
	case "", EngineColly, EngineHTTP, EngineBrowser:
	default:
		return fmt.Errorf("profile %s: engine must be colly, http, or browser", p.Name)
	}
	if p.CategorySegment < 0 {
		return fmt.Errorf("profile %s: category segment cannot be negative", p.Name)
	}

	fields := map[string]FieldSelector{
		"name":  p.Fields.Name,
		"link":  p.Fields.Link,
		"price": p.Fields.Price,
		"image": p.Fields.Image,
	}
	for name, field := range p.Fields.Extra {
		switch name {
		case "name", "link", "price", "image", "image_url":
			return fmt.Errorf("profile %s: extra field %q shadows a record field", p.Name, name)
		}
		fields["extra."+name] = field
	}
	for name, field := range fields {
		if err := validateField(field); err != nil {
			return fmt.Errorf("profile %s: field %s: %w", p.Name, name, err)
		}
	}
	return nil
}

func validateField(f FieldSelector) error {
	if f.Selector != "" {
		if _, err := cascadia.ParseGroup(f.Selector); err != nil {
			return fmt.Errorf("selector: %w", err)
		}
	}
	if f.Word < 0 {
		return fmt.Errorf("word index cannot be negative")
	}
	switch f.Transform {
	case TransformNone, TransformTrim, TransformRating:
	default:
		return fmt.Errorf("unknown transform %q", f.Transform)
	}
	return nil
}

// BuiltinProfiles returns fresh copies of the bundled site profiles.
func BuiltinProfiles() map[string]*Profile {
	return map[string]*Profile{
		"books": {
			Name:          "books",
			PageURL:       "https://books.toscrape.com/catalogue/page-{page}.html",
			ReadySelector: "article.product_pod",
			ItemSelector:  "article.product_pod",
			EndOnNotFound: true,
			Fields: Fields{
				Name:  FieldSelector{Selector: "h3 a", Attr: "title"},
				Link:  FieldSelector{Selector: "h3 a", Attr: "href"},
				Price: FieldSelector{Selector: "p.price_color"},
				Image: FieldSelector{Selector: "img", Attr: "src"},
				Extra: map[string]FieldSelector{
					"rating":       {Selector: "p.star-rating", Attr: "class", Word: 2, Transform: TransformRating},
					"availability": {Selector: "p.availability", Transform: TransformTrim},
				},
			},
		},
		"lulu": {
			Name:            "lulu",
			Engine:          EngineBrowser,
			PageURL:         "https://gcc.luluhypermarket.com/ar-sa/electronics-gaming?page={page}",
			ItemSelector:    `div[class*="rounded-[32px]"][class*="border"][class*="border-[#d9d9d9]"]`,
			CategorySegment: 2,
			Fields: Fields{
				Name:  FieldSelector{Selector: "a[data-testid]"},
				Link:  FieldSelector{Selector: "a[data-testid]", Attr: "href"},
				Price: FieldSelector{Selector: `span[data-testid="product-price"]`},
				Image: FieldSelector{Selector: "img", Attr: "src"},
			},
		},
		"quotes": {
			Name:          "quotes",
			PageURL:       "http://quotes.toscrape.com/page/{page}/",
			ReadySelector: "div.quote",
			ItemSelector:  "div.quote",
			Fields: Fields{
				Name: FieldSelector{Selector: "span.text"},
				Link: FieldSelector{Selector: "span a", Attr: "href"},
				Extra: map[string]FieldSelector{
					"author": {Selector: "small.author", Transform: TransformTrim},
					"tags":   {Selector: "div.tags", Transform: TransformTrim},
				},
			},
		},
	}
}

// LoadProfiles reads profiles from a YAML, JSON or TOML file with a
// top-level "profiles" list.
func LoadProfiles(path string) ([]*Profile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}

	var file struct {
		Profiles []*Profile `mapstructure:"profiles"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode profiles file: %w", err)
	}
	if len(file.Profiles) == 0 {
		return nil, fmt.Errorf("profiles file %s defines no profiles", path)
	}
	for _, p := range file.Profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Profiles, nil
}

// ResolveProfile picks the named profile, looking in the profiles file first
// (when set) and then in the built-ins.
func ResolveProfile(name, profilesFile string) (*Profile, error) {
	if profilesFile != "" {
		loaded, err := LoadProfiles(profilesFile)
		if err != nil {
			return nil, err
		}
		for _, p := range loaded {
			if p.Name == name {
				return p, nil
			}
		}
	}
	builtin, ok := BuiltinProfiles()[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	if err := builtin.Validate(); err != nil {
		return nil, err
	}
	return builtin, nil
}
