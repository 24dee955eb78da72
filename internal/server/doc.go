// Package server is a local bridge between a browser frontend and one
// reMarkable session.
//
// It serves a JSON API over net/http and pushes events to websocket clients
// on /ws using gorilla/websocket.
//
// # Endpoints
//
//	GET    /api/state                 connection state and session
//	POST   /api/connect               {"address", "keyPath"}; empty body reuses the saved device
//	POST   /api/retry                 reconnect a lost session
//	POST   /api/disconnect
//	POST   /api/reboot
//	GET    /api/templates             synced, unsynced and deletion-pending templates
//	POST   /api/templates             {"path", "name", "landscape", "categories"}
//	PATCH  /api/templates/{filename}  {"name"}
//	DELETE /api/templates/{filename}
//	POST   /api/sync
//	POST   /api/backup                {"dir"}
//	GET    /api/keys
//	POST   /api/keys                  generate a key
//	POST   /api/keys/upload           {"keyPath", "address", "password"}
//
// Errors are returned as {"error", "code", "hint"}. A network operation
// attempted while another is running returns 409 with code "busy"; an
// operation on a lost connection returns 503.
//
// # Events
//
// Every message on /ws is {"type", "timestamp", "data"}. New clients first
// receive "state" and "templates". Later events are "state",
// "templates", "sync_started", "sync_finished", "backup_started" and
// "backup_finished". The server pings every 54 seconds and drops clients
// that do not answer within 60.
package server
