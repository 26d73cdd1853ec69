package metrics

import "database/sql"

// ObserveStorePool publishes a snapshot of the memory store pool. A pool without an open
// connection limit reports limit 0.
func ObserveStorePool(stats sql.DBStats) {
	StoreConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	StoreConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	StoreConnections.WithLabelValues("limit").Set(float64(stats.MaxOpenConnections))
	StoreConnectionWaits.Set(float64(stats.WaitCount))
	StoreConnectionWaitSeconds.Set(stats.WaitDuration.Seconds())
}
