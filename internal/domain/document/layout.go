package document

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Kind identifies a printable document type
type Kind string

const (
	KindItinerary Kind = "itinerary"
	KindQuotation Kind = "quotation"
)

// PageLayout describes the fixed geometry of one page template, in CSS pixels
type PageLayout struct {
	PageWidth     float64 `yaml:"page_width" json:"page_width"`
	PageHeight    float64 `yaml:"page_height" json:"page_height"`
	HeaderHeight  float64 `yaml:"header_height" json:"header_height"`
	FooterHeight  float64 `yaml:"footer_height" json:"footer_height"`
	PaddingTop    float64 `yaml:"padding_top" json:"padding_top"`
	PaddingBottom float64 `yaml:"padding_bottom" json:"padding_bottom"`
	BlockGap      float64 `yaml:"block_gap" json:"block_gap"`
}

// ContentBudget returns the height available to content blocks on one page
func (l PageLayout) ContentBudget() float64 {
	return l.PageHeight - l.HeaderHeight - l.FooterHeight - l.PaddingTop - l.PaddingBottom
}

// Validate checks that the layout leaves room for content
func (l PageLayout) Validate() error {
	if l.PageWidth <= 0 || l.PageHeight <= 0 {
		return fmt.Errorf("page size must be positive, got %.0fx%.0f", l.PageWidth, l.PageHeight)
	}
	if l.ContentBudget() <= 0 {
		return fmt.Errorf("header, footer and padding leave no content area (%.0fpx)", l.ContentBudget())
	}
	return nil
}

// A4 at 96 dpi is 794x1123 CSS pixels
const (
	a4Width  = 794
	a4Height = 1123
)

// DefaultLayouts returns the built-in layouts for each document kind
func DefaultLayouts() map[Kind]PageLayout {
	return map[Kind]PageLayout{
		KindItinerary: {
			PageWidth:     a4Width,
			PageHeight:    a4Height,
			HeaderHeight:  150,
			FooterHeight:  70,
			PaddingTop:    32,
			PaddingBottom: 32,
			BlockGap:      18,
		},
		KindQuotation: {
			PageWidth:     a4Width,
			PageHeight:    a4Height,
			HeaderHeight:  210,
			FooterHeight:  90,
			PaddingTop:    24,
			PaddingBottom: 24,
			BlockGap:      0,
		},
	}
}

type layoutsFile struct {
	Layouts map[Kind]PageLayout `yaml:"layouts"`
}

// LoadLayouts reads layout overrides from YAML and merges them over the defaults.
//
//	layouts:
//	  itinerary:
//	    page_width: 794
//	    page_height: 1123
//	    header_height: 150
func LoadLayouts(r io.Reader) (map[Kind]PageLayout, error) {
	var f layoutsFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode layouts: %w", err)
	}
	layouts := DefaultLayouts()
	for kind, l := range f.Layouts {
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("layout %q: %w", kind, err)
		}
		layouts[kind] = l
	}
	return layouts, nil
}

// LoadLayoutsFile reads layouts from path. An empty path yields the defaults.
func LoadLayoutsFile(path string) (map[Kind]PageLayout, error) {
	if path == "" {
		return DefaultLayouts(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open layouts file: %w", err)
	}
	defer f.Close()
	return LoadLayouts(f)
}
