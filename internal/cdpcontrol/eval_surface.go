package cdpcontrol

import "github.com/qrdx-org/qrdx-trade/internal/chart"

func jsReady() string {
	return wrapJSEvalAsync(`
if (document.fonts) { await document.fonts.ready; }
return JSON.stringify({ok:true,data:!!(window.__qrdx && window.__qrdx.ready && window.__qrdx.ready())});`)
}

func jsSize() string { return bridgeCall("size") }

func jsCreate(opts chart.SurfaceOptions) string { return bridgeCall("create", opts) }

func jsAddSeries(spec chart.SeriesSpec) string { return bridgeCall("addSeries", spec) }

func jsSetBars(series chart.SeriesID, bars []chart.Bar) string {
	if bars == nil {
		bars = []chart.Bar{}
	}
	return bridgeCall("setBars", series, bars)
}

func jsSetPoints(series chart.SeriesID, points []chart.Point) string {
	if points == nil {
		points = []chart.Point{}
	}
	return bridgeCall("setPoints", series, points)
}

func jsUpdateBar(series chart.SeriesID, bar chart.Bar) string {
	return bridgeCall("updateBar", series, bar)
}

func jsUpdatePoint(series chart.SeriesID, p chart.Point) string {
	return bridgeCall("updatePoint", series, p)
}

func jsFitContent() string { return bridgeCall("fitContent") }

func jsCreatePriceLine(series chart.SeriesID, line chart.PriceLine) string {
	return bridgeCall("createPriceLine", series, line)
}

func jsRemovePriceLine(series chart.SeriesID, id chart.PrimitiveID) string {
	return bridgeCall("removePriceLine", series, id)
}

func jsCoordinateToPrice(series chart.SeriesID, y float64) string {
	return bridgeCall("coordinateToPrice", series, y)
}

func jsPriceToCoordinate(series chart.SeriesID, price float64) string {
	return bridgeCall("priceToCoordinate", series, price)
}

func jsDestroy() string { return bridgeCall("destroy") }
