// Package transfer holds the command protocol shared by clients, servers
// and mirroring peers: result codes, signed parameter lists and the
// chunked upload and download loops.
package transfer

// Result codes. Their values are stable and safe to persist.
const (
	OK             = "OK"
	ChunkOK        = "CHUNK_OK"
	NoServer       = "NO_SERVER"
	Incomplete     = "INCOMPLETE"
	InvalidData    = "INVALID_DATA"
	SigError       = "SIG_ERROR"
	NotAuthorized  = "NOT_AUTHORIZED"
	Rejected       = "REJECTED"
	UnknownCommand = "UNKNOWN_COMMAND"
	NotFound       = "NOT_FOUND"
	ServerFailure  = "SERVER_ERROR"
	Duplicate      = "DUPLICATE"
)

// Client commands.
const (
	CmdPing                  = "PING"
	CmdGetServerInfo         = "GET_SERVER_INFO"
	CmdRequestUploadRights   = "REQUEST_UPLOAD_RIGHTS"
	CmdPutBulletinChunk      = "PUT_BULLETIN_CHUNK"
	CmdGetBulletinChunk      = "GET_BULLETIN_CHUNK"
	CmdListSealedBulletinIDs = "LIST_SEALED_BULLETIN_IDS"
	CmdDeleteDraftBulletins  = "DELETE_DRAFT_BULLETINS"
	CmdGetPublicDataPacket   = "GET_PUBLIC_DATA_PACKET"

	// HQ commands.
	CmdListFieldOfficeAccounts = "LIST_FIELD_OFFICE_ACCOUNTS"
)

// Mirroring commands.
const (
	CmdListAccountsForMirroring  = "LIST_ACCOUNTS_FOR_MIRRORING"
	CmdListBulletinsForMirroring = "LIST_BULLETINS_FOR_MIRRORING"
	CmdGetChunkForMirroring      = "GET_BULLETIN_CHUNK_FOR_MIRRORING"
)

// MaxChunkSize bounds chunk payloads in both directions.
const MaxChunkSize = 100 * 1024

// CapChunkSize limits a requested chunk size to (0, MaxChunkSize].
func CapChunkSize(n int) int {
	if n <= 0 || n > MaxChunkSize {
		return MaxChunkSize
	}
	return n
}
