// Package redisstore backs every resq collaborator contract with a single
// Redis client: queues are lists (RPUSH/LPOP, BLPOP for the blocking
// multi-queue reserve), statuses are JSON values with a 24h TTL once
// terminal, failure records are appended to a list, and counters are plain
// INCR keys. All keys live under a configurable namespace, "resq:" by
// default, so several applications can share one Redis.
//
// The caller owns the Redis client lifecycle:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := redisstore.New(client)
package redisstore
