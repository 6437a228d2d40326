package topology

// =============================================================================
// Resource Naming Functions
// =============================================================================

// NetworkName returns the name of the network isolating a run.
// The run id is used verbatim.
//
// Example:
//
//	NetworkName("OrderTest-checkout") // returns "OrderTest-checkout"
func NetworkName(runID string) string {
	return runID
}

// ServiceName returns the container name of a service within a run.
// Pattern: {alias}-{runID}
//
// Example:
//
//	ServiceName("db", "123") // returns "db-123"
func ServiceName(alias, runID string) string {
	return alias + "-" + runID
}

// PrivateSourceName returns the run-specific source of a private bind.
// Pattern: {from}_{runID}, applied to volume names and host paths alike.
//
// Example:
//
//	PrivateSourceName("data", "123")         // returns "data_123"
//	PrivateSourceName("/from/private", "123") // returns "/from/private_123"
func PrivateSourceName(from, runID string) string {
	return from + "_" + runID
}
