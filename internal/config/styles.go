package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/qrdx-org/qrdx-trade/internal/chart"
)

// StyleEntry overrides one line style. Unset fields keep the default.
type StyleEntry struct {
	Color  string `yaml:"color"`
	Width  int    `yaml:"width"`
	Title  string `yaml:"title"`
	Dashed *bool  `yaml:"dashed"`
}

// StyleFile is the YAML line-style file.
//
//	lines:
//	  buy: {color: "#16a34a", title: "Long"}
//	buy_limit: {dashed: false}
type StyleFile struct {
	Lines     map[chart.LineKind]StyleEntry `yaml:"lines"`
	BuyLimit  *StyleEntry                   `yaml:"buy_limit"`
	SellLimit *StyleEntry                   `yaml:"sell_limit"`
}

// LoadStyles returns the default palette with the overrides in path applied.
// An empty path returns the defaults.
func LoadStyles(path string) (chart.StyleSet, error) {
	styles := chart.DefaultStyles()
	if path == "" {
		return styles, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return styles, fmt.Errorf("style file: %w", err)
	}
	var f StyleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return styles, fmt.Errorf("style file: %w", err)
	}
	for kind, entry := range f.Lines {
		if !kind.Valid() {
			return styles, fmt.Errorf("style file: unknown line kind %q", kind)
		}
		styles.Lines[kind] = entry.apply(styles.Lines[kind])
	}
	if f.BuyLimit != nil {
		styles.BuyLimit = f.BuyLimit.apply(styles.BuyLimit)
	}
	if f.SellLimit != nil {
		styles.SellLimit = f.SellLimit.apply(styles.SellLimit)
	}
	return styles, nil
}

func (e StyleEntry) apply(st chart.LineStyle) chart.LineStyle {
	st = st.Override(chart.LineStyle{Color: e.Color, Width: e.Width, Title: e.Title})
	if e.Dashed != nil {
		st.Dashed = *e.Dashed
	}
	return st
}
