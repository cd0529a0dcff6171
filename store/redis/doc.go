// Package redis implements the task store on Redis for deployments that
// already run it. Tasks are stored as Hashes, the ready queue is a Sorted
// Set scored by priority and enqueue time, and the admission-critical
// operations run as Lua scripts so concurrent callers cannot both win.
//
// The caller owns the client lifecycle -- redis never closes it:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	st := redis.New(client)
//	if err := st.Ping(ctx); err != nil { ... }
package redis
