package node

// EventKind enumerates every event the unified node pushes through its
// event stream (§6's taxonomy, plus §4.D/J's own event kinds).
type EventKind int

const (
	EventPeerDiscovered EventKind = iota
	EventPeerExpired
	EventNicknameUpdated
	EventConnected
	EventDisconnected
	EventDirectMessage
	EventDirectFileShareMessage
	EventDirectGroupShareMessage
	EventGroupMessage
	EventGroupFileShareMessage
	EventGroupJoined
	EventGroupLeft
	EventFileShared
	EventFileRevoked
	EventFileListReceived
	EventFileInfoReceived
	EventFileDownloadStarted
	EventFileDownloadProgress
	EventFileDownloadCompleted
	EventFileDownloadFailed
	EventListeningOn
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPeerDiscovered:
		return "PeerDiscovered"
	case EventPeerExpired:
		return "PeerExpired"
	case EventNicknameUpdated:
		return "NicknameUpdated"
	case EventConnected:
		return "Connected"
	case EventDisconnected:
		return "Disconnected"
	case EventDirectMessage:
		return "DirectMessage"
	case EventDirectFileShareMessage:
		return "DirectFileShareMessage"
	case EventDirectGroupShareMessage:
		return "DirectGroupShareMessage"
	case EventGroupMessage:
		return "GroupMessage"
	case EventGroupFileShareMessage:
		return "GroupFileShareMessage"
	case EventGroupJoined:
		return "GroupJoined"
	case EventGroupLeft:
		return "GroupLeft"
	case EventFileShared:
		return "FileShared"
	case EventFileRevoked:
		return "FileRevoked"
	case EventFileListReceived:
		return "FileListReceived"
	case EventFileInfoReceived:
		return "FileInfoReceived"
	case EventFileDownloadStarted:
		return "FileDownloadStarted"
	case EventFileDownloadProgress:
		return "FileDownloadProgress"
	case EventFileDownloadCompleted:
		return "FileDownloadCompleted"
	case EventFileDownloadFailed:
		return "FileDownloadFailed"
	case EventListeningOn:
		return "ListeningOn"
	case EventError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is the single event type pushed through Node's event stream.
// Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	PeerID       string
	Nickname     string
	Addr         string
	Message      string
	GroupName    string
	GroupID      string
	ShareCode    string
	Filename     string
	FileSize     int64
	FileType     string
	InviterName  string

	Files []FileSummary

	Download DownloadSnapshot

	Err string
}

// FileSummary mirrors one entry of a FileListReceived event.
type FileSummary struct {
	ShareCode  string
	Name       string
	Size       int64
	Hash       string
	ChunkCount int
	CreatedAt  int64
}

// DownloadSnapshot carries the fields a download event reports.
type DownloadSnapshot struct {
	DownloadID       string
	FromPeer         string
	FromNickname     string
	Filename         string
	DownloadedChunks int
	TotalChunks      int
	BytesPerSecond   float64
	Path             string
}
