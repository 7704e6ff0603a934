// Package session manages gateway sessions. Each WebSocket connection gets a
// session that starts anonymous and becomes user-bound after the identify
// handshake. Session state lives in Redis so any gateway instance can answer
// "is this user online, and where".
package session
