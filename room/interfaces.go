package room

// Broadcaster delivers room events to the connections bound to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomCode, event string, payload any) error
	SendToPlayer(roomCode, playerID, event string, payload any) error
}
