// Package protocol defines the JSON frames exchanged over the notification and
// duel sockets and the single decode boundary for each direction.
//
// Notification socket, server -> client:
//
//	{"type":"welcome","message":"..."}
//	{"type":"duel_request","duelId":"42","requesterId":"4","requesterName":"Ana"}
//
// Duel socket, server -> client:
//
//	{"type":"question","data":{"id":"q1","text":"2+2?","options":["3","4","5"],"total":5,"timeLimit":20}}
//	{"type":"opponent_progress","progress":2,"playerId":"7"}
//	{"type":"error","message":"..."}
//
// Duel socket, client -> server:
//
//	{"type":"answer","questionId":"q1","answer":"4"}
//
// "total" and "timeLimit" (seconds) are optional on question frames.
package protocol
