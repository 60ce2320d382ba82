package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a room id has no live room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotInRoom is returned when a peer acts before being matched.
	ErrNotInRoom = errors.New("peer is not in a room")
	// ErrAlreadyMatched is returned when a peer inside a room asks for another match.
	ErrAlreadyMatched = errors.New("peer already in a room")
	// ErrRoomFinished indicates the room no longer accepts answers.
	ErrRoomFinished = errors.New("room already finished")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question index outside the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidAnswer indicates an unusable answer payload.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrOutOfOrder is returned for duplicate or skipped question indexes.
	ErrOutOfOrder = errors.New("answer out of order")
	ErrQuizComplete = errors.New("all questions already answered")
	ErrTimeExpired  = errors.New("duel clock expired")
	// ErrInvalidState is returned when an operation does not fit the current duel state.
	ErrInvalidState = errors.New("invalid duel state")
	// ErrClassifierUnavailable wraps failures of the drawing-recognition service.
	ErrClassifierUnavailable = errors.New("drawing classifier unavailable")
	ErrUnauthorized          = errors.New("unauthorized")
)
