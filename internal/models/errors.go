package models

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrAlreadyMember       = errors.New("peer is already a member of this room")
	ErrPeerBusy            = errors.New("peer is a member of another room")
	ErrNoTranscript        = errors.New("no transcript available for session")
	ErrCollaboratorTimeout = errors.New("collaborator request timed out")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrSummarizationFailed = errors.New("summarization failed")
)
