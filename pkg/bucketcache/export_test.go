package bucketcache

// BucketIndexForTesting exposes the bucket a key maps to.
func BucketIndexForTesting(t *Table, key uint64) uint64 {
	return t.bucketIndex(key)
}

// SchedulerFaultsForTesting returns the number of failed sweep cycles.
func SchedulerFaultsForTesting(s *Store) int64 {
	return s.faults.Load()
}
