package instrumentation

import "net/http"

// Operation types for Google API metrics.
// Status, OAuth, and Service constants are defined in config.go.
const (
	OperationList     = "list"
	OperationCreate   = "create"
	OperationUpdate   = "update"
	OperationDelete   = "delete"
	OperationExchange = "exchange"
	OperationRefresh  = "refresh"
	OperationRevoke   = "revoke"
	OperationEnsure   = "ensure_calendar"
)

// RouteUnmatched is the route label for requests no pattern matched.
const RouteUnmatched = "unmatched"

// RouteLabel returns a bounded-cardinality label for r: the ServeMux pattern
// that matched it. Raw paths carry task ids and are never used.
func RouteLabel(r *http.Request) string {
	if r == nil || r.Pattern == "" {
		return RouteUnmatched
	}
	return r.Pattern
}
