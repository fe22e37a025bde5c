package pipeline

import (
	"bufio"
	"fmt"
	"html/template"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

var explorerTemplate = template.Must(template.New("explorer").Funcs(template.FuncMap{
	"price": FormatPrice,
	"stars": stars,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}} - {{.Total}} products</title>
<style>
body { font-family: 'Segoe UI', Tahoma, sans-serif; background: #f4f5fb; color: #333; margin: 0; }
.container { max-width: 1400px; margin: 0 auto; padding: 20px; }
.stats { display: flex; gap: 24px; flex-wrap: wrap; margin-bottom: 24px; }
.stat { background: #fff; border-radius: 12px; padding: 12px 20px; }
.grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(260px, 1fr)); gap: 20px; }
.card { background: #fff; border-radius: 12px; padding: 16px; }
.card img { max-width: 100%; height: 180px; object-fit: contain; }
.stars { color: #f5a623; }
.extra { font-size: 0.85rem; color: #666; }
</style>
</head>
<body>
<div class="container">
<h1>{{.Title}}</h1>
<div class="stats">
<div class="stat"><strong>{{.Total}}</strong> products</div>
{{if .HasPrices}}<div class="stat">Price range <strong>{{printf "%.2f" .MinPrice}}</strong> to <strong>{{printf "%.2f" .MaxPrice}}</strong></div>{{end}}
{{if .Categories}}<div class="stat">Categories: {{range $i, $c := .Categories}}{{if $i}}, {{end}}{{$c}}{{end}}</div>{{end}}
</div>
<div class="grid">
{{range .Records}}<div class="card">
{{if .ImageURL}}<img src="{{.ImageURL}}" alt="{{.Name}}" loading="lazy">{{end}}
<h3>{{if .Link}}<a href="{{.Link}}">{{.Name}}</a>{{else}}{{.Name}}{{end}}</h3>
{{with .Price}}<p class="price">{{price .}}</p>{{end}}
{{with index .Extra "rating"}}<p class="stars">{{stars .}}</p>{{end}}
{{range $k, $v := .Extra}}{{if ne $k "rating"}}<p class="extra">{{$k}}: {{$v}}</p>{{end}}{{end}}
</div>
{{end}}</div>
</div>
</body>
</html>
`))

type explorerPage struct {
	Title      string
	Total      int
	Categories []string
	HasPrices  bool
	MinPrice   float64
	MaxPrice   float64
	Records    []*models.Record
}

// HTMLWriter renders a static explorer page with summary statistics and one
// card per record. Records are buffered and the page is written by Close.
type HTMLWriter struct {
	filename string
	title    string
	records  []*models.Record
	closed   bool
	mu       sync.Mutex
}

// NewHTMLWriter prepares the output path. An empty title defaults to
// "Catalog Explorer".
func NewHTMLWriter(filename, title string) (*HTMLWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	if strings.TrimSpace(title) == "" {
		title = "Catalog Explorer"
	}
	return &HTMLWriter{filename: filename, title: title}, nil
}

// Write buffers records for rendering.
func (hw *HTMLWriter) Write(records []*models.Record) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if hw.closed {
		return fmt.Errorf("html writer is closed")
	}
	hw.records = append(hw.records, records...)
	return nil
}

// Close renders the page and writes it to disk.
func (hw *HTMLWriter) Close() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if hw.closed {
		return nil
	}
	hw.closed = true

	f, err := os.Create(hw.filename)
	if err != nil {
		return fmt.Errorf("create html file: %w", err)
	}
	buffer := bufio.NewWriter(f)
	if err := explorerTemplate.Execute(buffer, buildExplorerPage(hw.title, hw.records)); err != nil {
		f.Close()
		return fmt.Errorf("render html: %w", err)
	}
	if err := buffer.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush html writer: %w", err)
	}
	return f.Close()
}

// Validate ensures there is something to render.
func (hw *HTMLWriter) Validate() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if len(hw.records) == 0 {
		return fmt.Errorf("html page has no records")
	}
	return nil
}

func buildExplorerPage(title string, records []*models.Record) explorerPage {
	page := explorerPage{
		Title:   title,
		Total:   len(records),
		Records: records,
	}

	categories := make(map[string]struct{})
	for _, r := range records {
		if c := strings.TrimSpace(r.Extra["category"]); c != "" {
			categories[c] = struct{}{}
		}
		if r.Price == nil {
			continue
		}
		if !page.HasPrices || *r.Price < page.MinPrice {
			page.MinPrice = *r.Price
		}
		if !page.HasPrices || *r.Price > page.MaxPrice {
			page.MaxPrice = *r.Price
		}
		page.HasPrices = true
	}
	for c := range categories {
		page.Categories = append(page.Categories, c)
	}
	sort.Strings(page.Categories)
	return page
}

// stars renders a 0-5 rating as filled and empty stars.
func stars(rating string) string {
	n, err := strconv.Atoi(strings.TrimSpace(rating))
	if err != nil || n < 0 {
		n = 0
	}
	if n > 5 {
		n = 5
	}
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
}
