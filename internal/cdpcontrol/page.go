package cdpcontrol

import "net/http"

// LightweightChartsURL is the standalone charting bundle the surface page loads.
const LightweightChartsURL = "https://unpkg.com/lightweight-charts@5.0.8/dist/lightweight-charts.standalone.production.js"

// SurfacePage is the HTML document every chart tab loads. It exposes the
// window.__qrdx bridge the eval builders call into.
const SurfacePage = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>qrdx surface</title>
<style>html,body{margin:0;height:100%;background:#0b0e14}#chart{width:100%;height:100%}</style>
<script src="` + LightweightChartsURL + `"></script>
</head>
<body>
<div id="chart"></div>
<script>
(function(){
  var LW = window.LightweightCharts;
  var el = document.getElementById("chart");
  var api = null;
  var series = {};
  var lines = {};
  var seq = 0;

  function need(id) {
    var s = series[id];
    if (!s) { throw new Error("unknown series " + id); }
    return s;
  }

  function seriesDef(type) {
    switch (type) {
      case "bar": return LW.BarSeries;
      case "line": return LW.LineSeries;
      case "area": return LW.AreaSeries;
      default: return LW.CandlestickSeries;
    }
  }

  window.__qrdx = {
    ready: function() { return !!LW; },
    size: function() { return {width: el.clientWidth, height: el.clientHeight}; },
    create: function(opts) {
      if (api) { throw new Error("surface already created"); }
      api = LW.createChart(el, {
        width: opts.width,
        height: opts.height,
        layout: {background: {color: "#0b0e14"}, textColor: "#d1d4dc"},
        grid: {vertLines: {color: "#1f2430"}, horzLines: {color: "#1f2430"}},
        leftPriceScale: {visible: !!opts.left_scale},
        rightPriceScale: {visible: true},
        timeScale: {timeVisible: true, secondsVisible: false}
      });
      if (opts.watermark) {
        LW.createTextWatermark(api.panes()[0], {
          horzAlign: "center", vertAlign: "center",
          lines: [{text: opts.watermark, color: "rgba(147,51,234,0.25)", fontSize: 48}]
        });
      }
      series = {}; lines = {};
      return null;
    },
    addSeries: function(spec) {
      var o = {priceScaleId: spec.scale || "right"};
      if (spec.title) { o.title = spec.title; }
      if (spec.color) { o.color = spec.color; o.lineColor = spec.color; }
      if (spec.up_color) { o.upColor = spec.up_color; o.wickUpColor = spec.up_color; o.borderUpColor = spec.up_color; }
      if (spec.down_color) { o.downColor = spec.down_color; o.wickDownColor = spec.down_color; o.borderDownColor = spec.down_color; }
      if (spec.top_color) { o.topColor = spec.top_color; }
      if (spec.bottom_color) { o.bottomColor = spec.bottom_color; }
      if (spec.line_width) { o.lineWidth = spec.line_width; }
      var id = "s" + (++seq);
      series[id] = api.addSeries(seriesDef(spec.type), o);
      return id;
    },
    setBars: function(id, bars) { need(id).setData(bars); return null; },
    setPoints: function(id, pts) { need(id).setData(pts); return null; },
    updateBar: function(id, bar) { need(id).update(bar); return null; },
    updatePoint: function(id, p) { need(id).update(p); return null; },
    fitContent: function() { api.timeScale().fitContent(); return null; },
    createPriceLine: function(id, l) {
      var pl = need(id).createPriceLine({
        price: l.price,
        color: l.color,
        lineWidth: l.width || 1,
        lineStyle: l.dashed ? 2 : 0,
        axisLabelVisible: !!l.axis_label,
        title: l.title || ""
      });
      var pid = "p" + (++seq);
      lines[pid] = {series: id, line: pl};
      return pid;
    },
    removePriceLine: function(id, pid) {
      var e = lines[pid];
      if (!e) { return null; }
      need(id).removePriceLine(e.line);
      delete lines[pid];
      return null;
    },
    coordinateToPrice: function(id, y) {
      var v = need(id).coordinateToPrice(y);
      return {value: v === null || v === undefined ? null : v};
    },
    priceToCoordinate: function(id, p) {
      var v = need(id).priceToCoordinate(p);
      return {value: v === null || v === undefined ? null : v};
    },
    destroy: function() {
      if (!api) { throw new Error("surface not created"); }
      api.remove();
      api = null; series = {}; lines = {};
      return null;
    }
  };
})();
</script>
</body>
</html>
`

// ServeSurfacePage writes SurfacePage.
func ServeSurfacePage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(SurfacePage))
}
