// Package persistence stores discovered devices in a JSON file so a
// restarted node remembers recently seen peers.
//
// The store keeps every device in memory for the lifetime of the
// process. Staleness is applied when writing: devices not seen within
// the retention window are dropped from the file but stay in the live
// cache until PruneExpired evicts them. A crash therefore loses at most
// the devices seen since the last save.
package persistence
