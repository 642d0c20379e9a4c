package constant

// Ключи для структурированных логов
const (
	Error        = "error"
	ConnectionID = "connection_id"
	PeerID       = "peer_id"
	RoomID       = "room_id"
	UserID       = "user_id"
	UserName     = "user_name"
	Type         = "type"
	State        = "state"
	Reason       = "reason"
)
