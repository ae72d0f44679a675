// Package observability provides logging and metrics support for the
// research pipeline service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for cycles, reports, downloads, and LLM calls
//   - Context helpers for propagating request identifiers
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("run_date", date).Msg("cycle started")
//
// Add cycle context to a logger:
//
//	logger = observability.WithCycleContext(logger, date)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("research_pipeline")
//
// Record metrics:
//
//	metrics.RecordCycleStarted()
//	metrics.RecordLLMRequest("gpt-5", elapsed.Seconds())
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - run_date: Pipeline run date key (YYYY-MM-DD)
//   - paper_id: Paper identifier
//   - component: Emitting component name
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
