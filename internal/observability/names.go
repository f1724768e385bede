// Package observability provides OpenTelemetry metrics and tracing for the matchloop service.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameFeedbackSubmitted    = "matchloop_feedback_submitted_total"
	MetricNameLearningOutcomes     = "matchloop_learning_outcomes_total"
	MetricNameAdjustmentFactor     = "matchloop_adjustment_factor"
	MetricNameVersionConflicts     = "matchloop_embedding_version_conflicts_total"
	MetricNameCloseLoopChanges     = "matchloop_close_loop_changes_total"
	MetricNameCacheHits            = "matchloop_cache_hits_total"
	MetricNameCacheMisses          = "matchloop_cache_misses_total"
	MetricNameCacheInvalidations   = "matchloop_cache_invalidations_total"
	MetricNameCacheBackendErrors   = "matchloop_cache_backend_errors_total"
	MetricNameMatchComputeDuration = "matchloop_match_compute_duration_seconds"
	MetricNameJobOutcomes          = "matchloop_job_outcomes_total"
	MetricNameJobDuration          = "matchloop_job_duration_seconds"
	MetricNameRiverQueueDepth      = "matchloop_river_queue_depth"
	MetricNameRequestBodyTooLarge  = "matchloop_request_body_too_large_total"
	MetricNameHTTPRequests         = "matchloop_http_requests_total"
	MetricNameHTTPRequestDuration  = "matchloop_http_request_duration_seconds"
)

// Attribute keys.
const (
	AttrFeedbackType = "feedback_type"
	AttrReason       = "reason"
	AttrStatus       = "status"
	AttrCache        = "cache"
	AttrOperation    = "operation"
	AttrDirection    = "direction"
	AttrJobKind      = "job_kind"
)

// AllowedFeedbackTypes for matchloop_feedback_submitted_total.
var AllowedFeedbackTypes = map[string]bool{
	"match_rating":       true,
	"connection_outcome": true,
	"dimension_feedback": true,
	"suggestion":         true,
	"complaint":          true,
}

// AllowedLearningStatuses for matchloop_learning_outcomes_total.
var AllowedLearningStatuses = map[string]bool{
	"applied":       true,
	"no_embeddings": true,
	"failed":        true,
	"skipped":       true,
}

// AllowedInvalidationReasons for matchloop_cache_invalidations_total.
var AllowedInvalidationReasons = map[string]bool{
	"feedback":       true,
	"profile_update": true,
	"refresh":        true,
	"all":            true,
}

// AllowedCacheOperations for matchloop_cache_backend_errors_total.
var AllowedCacheOperations = map[string]bool{
	"get":    true,
	"set":    true,
	"delete": true,
	"scan":   true,
}

// AllowedJobKinds for job metrics.
var AllowedJobKinds = map[string]bool{
	"close_loop":    true,
	"cache_refresh": true,
}

// AllowedJobStatuses for job metrics.
var AllowedJobStatuses = map[string]bool{
	"success": true,
	"failed":  true,
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeCacheName bounds the cache attribute to known caches.
func NormalizeCacheName(name string) string {
	switch name {
	case "match_cache":
		return name
	default:
		return "other"
	}
}
