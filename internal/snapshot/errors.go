package snapshot

import "time"

// ErrorKind enumerates the failures the analysis surface reports. Every kind
// renders as a complete document with error="true"; callers never see a bare
// transport error for these.
type ErrorKind string

const (
	ErrorNoData           ErrorKind = "no_data"
	ErrorInvalidTicker    ErrorKind = "invalid_ticker"
	ErrorInvalidHistory   ErrorKind = "invalid_history"
	ErrorStoreUnavailable ErrorKind = "store_unavailable"
	ErrorTimeout          ErrorKind = "timeout"
	ErrorInternal         ErrorKind = "internal_error"
)

type errorText struct {
	message     string
	causes      [3]string
	suggestions [3]string
}

var errorTexts = map[ErrorKind]errorText{
	ErrorNoData: {
		message: "No recent quote data available for this ticker",
		causes: [3]string{
			"The ticker has not traded within the lookback window",
			"The quote publisher is not streaming this symbol",
			"Quote data expired before the query arrived",
		},
		suggestions: [3]string{
			"Verify the ticker symbol is correct",
			"Check that the quote publisher is running",
			"Retry with a longer history window",
		},
	},
	ErrorInvalidTicker: {
		message: "Ticker symbol failed validation",
		causes: [3]string{
			"The symbol contains characters other than letters and digits",
			"The symbol is empty or longer than ten characters",
			"A company name was passed instead of its ticker",
		},
		suggestions: [3]string{
			"Use the exchange ticker symbol, for example SPY",
			"Remove whitespace and punctuation from the symbol",
			"Keep the symbol between one and ten characters",
		},
	},
	ErrorInvalidHistory: {
		message: "History window could not be parsed",
		causes: [3]string{
			"The value does not match a number followed by s, m or h",
			"The number part is missing or not a positive integer",
			"An unsupported unit was used",
		},
		suggestions: [3]string{
			"Use forms like 30s, 5mins or 1h",
			"Keep the window between 5 seconds and 1 hour",
			"Omit the argument to default to 5 minutes",
		},
	},
	ErrorStoreUnavailable: {
		message: "Quote store is unreachable",
		causes: [3]string{
			"The storage backend is down or restarting",
			"Network connectivity to the store was lost",
			"The store address in the configuration is wrong",
		},
		suggestions: [3]string{
			"Check that the storage backend is running",
			"Verify the configured store address",
			"Retry the query after a short delay",
		},
	},
	ErrorTimeout: {
		message: "Query deadline exceeded",
		causes: [3]string{
			"The storage backend responded too slowly",
			"The caller supplied a very short deadline",
			"The engine is under heavy query load",
		},
		suggestions: [3]string{
			"Retry the query",
			"Increase the caller's deadline",
			"Reduce the requested history window",
		},
	},
	ErrorInternal: {
		message: "Unexpected failure while assembling the analysis",
		causes: [3]string{
			"A derivation step failed on malformed stored data",
			"A storage record could not be decoded",
			"An unanticipated condition was hit during rendering",
		},
		suggestions: [3]string{
			"Retry the query",
			"Check the server logs for the error code",
			"Report the error code if the failure persists",
		},
	},
}

// ErrorDocument renders the error form of the analysis document. The code
// attribute carries the stable error kind; no internal detail leaks into the
// output.
func ErrorDocument(ticker string, now time.Time, kind ErrorKind) string {
	text, ok := errorTexts[kind]
	if !ok {
		kind = ErrorInternal
		text = errorTexts[ErrorInternal]
	}

	root := El("order_flow_data").
		Attr("ticker", ticker).
		Attr("timestamp", now.UTC().Format(timeLayout)).
		Attr("error", "true").
		Attr("code", string(kind))

	root.Leaf("error_message", text.message)

	causes := El("possible_causes")
	for _, c := range text.causes {
		causes.Leaf("cause", c)
	}
	root.Add(causes)

	suggestions := El("suggestions")
	for _, s := range text.suggestions {
		suggestions.Leaf("suggestion", s)
	}
	root.Add(suggestions)

	return root.Render()
}
