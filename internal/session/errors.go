package session

import "errors"

var (
	// ErrPermissionDenied means the caller may not access the room or
	// perform the attempted operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRoomNotFound means the room does not exist on the server.
	ErrRoomNotFound = errors.New("room not found")

	// ErrJoinFailed means the server rejected an automatic join. The wrapped
	// error carries the server's detail text.
	ErrJoinFailed = errors.New("join failed")
)
