package api

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	// Health and readiness checks
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/ready", s.handleReady)

	// Widget queries
	s.router.HandleFunc("/api/widgets/query", s.handleWidgetQuery)
	s.router.HandleFunc("/api/widgets/drilldown", s.handleDrilldown)

	// Cache invalidation hook for mutation paths outside this service
	s.router.HandleFunc("/api/invalidate", s.handleInvalidate)

	// Catalog discovery for dashboard builders
	s.router.HandleFunc("/api/catalog", s.handleCatalog)
}
