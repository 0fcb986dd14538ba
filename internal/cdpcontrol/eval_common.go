package cdpcontrol

import "encoding/json"

// jsBridgePreamble binds q to the surface page bridge or bails out with an
// API_UNAVAILABLE envelope.
const jsBridgePreamble = `
var q = window.__qrdx;
if (!q) { return JSON.stringify({ok:false,error_code:"` + CodeAPIUnavailable + `",error_message:"surface bridge not loaded"}); }`

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func jsJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string      { return buildIIFE(false, body) }
func wrapJSEvalAsync(body string) string { return buildIIFE(true, body) }

// bridgeCall builds an expression that calls q.method(args...) and returns
// its result as envelope data.
func bridgeCall(method string, args ...any) string {
	call := "q[" + jsString(method) + "]("
	for i, a := range args {
		if i > 0 {
			call += ", "
		}
		call += jsJSON(a)
	}
	call += ")"
	return wrapJSEval(jsBridgePreamble + `
var out = ` + call + `;
return JSON.stringify({ok:true,data:out === undefined ? null : out});`)
}
