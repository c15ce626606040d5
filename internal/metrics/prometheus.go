package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPrometheus formats metrics in Prometheus text format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func FormatPrometheus(snap Snapshot) string {
	var sb strings.Builder

	writeHeader(&sb, "socialcredit_uptime_seconds", "gauge", "Time since the server started")
	fmt.Fprintf(&sb, "socialcredit_uptime_seconds %d\n\n", snap.Uptime)

	writeLabelled(&sb, "socialcredit_requests_total", "counter", "Requests by route", "route", snap.TotalRequests, false)
	writeLabelled(&sb, "socialcredit_request_errors_total", "counter", "Requests answered with a 5xx status by route", "route", snap.RequestErrors, false)
	writeLabelled(&sb, "socialcredit_requests_in_progress", "gauge", "Requests currently being served", "route", snap.RequestsInProgress, true)
	writeLabelled(&sb, "socialcredit_request_duration_ms_total", "counter", "Total request duration in milliseconds", "route", snap.TotalRequestsDur, false)

	writeHeader(&sb, "socialcredit_rate_limit_hits_total", "counter", "Rejected plugin submissions")
	fmt.Fprintf(&sb, "socialcredit_rate_limit_hits_total %d\n\n", snap.RateLimitHits)

	masked := make(map[string]int64, len(snap.RateLimitByKey))
	for k, v := range snap.RateLimitByKey {
		masked[maskKey(k)] += v
	}
	writeLabelled(&sb, "socialcredit_rate_limit_by_key_total", "counter", "Rate limit hits by client or actor", "key", masked, false)

	writeLabelled(&sb, "socialcredit_ratings_total", "counter", "Accepted ratings by entry point", "source", snap.RatingsBySource, false)

	writeHeader(&sb, "socialcredit_deletes_total", "counter", "Latest-entry deletions")
	fmt.Fprintf(&sb, "socialcredit_deletes_total %d\n\n", snap.Deletes)
	writeHeader(&sb, "socialcredit_untracks_total", "counter", "Untrack requests")
	fmt.Fprintf(&sb, "socialcredit_untracks_total %d\n\n", snap.Untracks)

	return sb.String()
}

func writeHeader(sb *strings.Builder, name, kind, help string) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func writeLabelled(sb *strings.Builder, name, kind, help, label string, values map[string]int64, skipZero bool) {
	writeHeader(sb, name, kind, help)
	for _, k := range sortedKeys(values) {
		v := values[k]
		if skipZero && v <= 0 {
			continue
		}
		fmt.Fprintf(sb, "%s{%s=%q} %d\n", name, label, k, v)
	}
	sb.WriteString("\n")
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// maskKey keeps the key kind and the last four characters of the id.
func maskKey(key string) string {
	kind, id, ok := strings.Cut(key, ":")
	if !ok {
		kind, id = "key", key
	}
	if len(id) <= 4 {
		return kind + ":***"
	}
	return kind + ":***" + id[len(id)-4:]
}
