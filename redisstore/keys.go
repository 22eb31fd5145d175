package redisstore

// Key naming for resq data under the store namespace.

// queueKey is the list holding one queue: resq:queue:{name}
func (s *Store) queueKey(name string) string {
	return s.ns + "queue:" + name
}

// queuesKey is the set tracking every queue ever pushed to: resq:queues
func (s *Store) queuesKey() string {
	return s.ns + "queues"
}

// statusKey holds the tracked status of one attempt: resq:job:{id}:status
func (s *Store) statusKey(id string) string {
	return s.ns + "job:" + id + ":status"
}

// failedKey is the append-only list of failure records: resq:failed
func (s *Store) failedKey() string {
	return s.ns + "failed"
}

// statKey is one monotonic counter: resq:stat:{name}
func (s *Store) statKey(name string) string {
	return s.ns + "stat:" + name
}
