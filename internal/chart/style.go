package chart

// LineStyle is the visual identity of a drawn price line.
type LineStyle struct {
	Color     string `json:"color"`
	Width     int    `json:"width"`
	Dashed    bool   `json:"dashed"`
	Title     string `json:"title"`
	AxisLabel bool   `json:"axis_label"`
}

// StyleSet maps every line category to its style.
type StyleSet struct {
	Lines     map[LineKind]LineStyle
	BuyLimit  LineStyle
	SellLimit LineStyle
}

// DefaultStyles returns the stock palette.
func DefaultStyles() StyleSet {
	return StyleSet{
		Lines: map[LineKind]LineStyle{
			KindBuy:        {Color: "#22c55e", Width: 2, Title: "📈 Buy", AxisLabel: true},
			KindSell:       {Color: "#ef4444", Width: 2, Title: "📉 Sell", AxisLabel: true},
			KindStopLoss:   {Color: "#f59e0b", Width: 2, Title: "🛑 Stop Loss", AxisLabel: true},
			KindTakeProfit: {Color: "#3b82f6", Width: 2, Title: "🎯 Take Profit", AxisLabel: true},
			KindAnnotation: {Color: "#6b7280", Width: 1, Dashed: true, Title: "─ Line", AxisLabel: true},
		},
		BuyLimit:  LineStyle{Color: "#22c55e", Width: 2, Dashed: true, Title: "📈 Buy Limit", AxisLabel: true},
		SellLimit: LineStyle{Color: "#ef4444", Width: 2, Dashed: true, Title: "📉 Sell Limit", AxisLabel: true},
	}
}

// For returns the style for kind, falling back to the default palette.
func (s StyleSet) For(kind LineKind) LineStyle {
	if st, ok := s.Lines[kind]; ok {
		return st
	}
	return DefaultStyles().Lines[kind]
}

// Override replaces color, width and title where patch sets them.
func (st LineStyle) Override(patch LineStyle) LineStyle {
	if patch.Color != "" {
		st.Color = patch.Color
	}
	if patch.Width > 0 {
		st.Width = patch.Width
	}
	if patch.Title != "" {
		st.Title = patch.Title
	}
	return st
}
