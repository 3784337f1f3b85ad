// Package credentials authenticates broker users and keeps the bookkeeping
// behind the shutdown report.
//
// A Store answers CONNECT attempts with a LoginStatus, remembers which user
// each connection logged in as, and refuses a second concurrent login for
// the same user. Unknown users are registered on first login unless
// registration is disabled. Passwords are stored as bcrypt hashes in a
// UserRepository; MemoryRepository keeps them in process and RedisRepository
// shares them across restarts.
//
// The Store also records login history and publish provenance ("file
// uploads") and renders both with Report when the server shuts down.
package credentials
