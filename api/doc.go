// Package api documents the memflow HTTP API.
//
// # API Overview
//
// memflow provides a RESTful API for:
//   - Episodic memory storage and similarity search
//   - Feedback-driven learning (signals, patterns, action selection)
//   - Case-based reasoning (retrieval, adaptation, prediction, validation)
//   - Memory lifecycle management (optimization, health, backup)
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// Prometheus metrics are served separately on the metrics port:
//
//	http://localhost:9090/metrics
//
// # Response Format
//
// All endpoints return a unified JSON envelope:
//
//	{"success": true, "data": {...}, "timestamp": "..."}
//	{"success": false, "error": {"code": "NOT_FOUND", "message": "..."}}
package api
