package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound is returned for an unknown room id or invite code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidState is returned when the room's lifecycle state forbids the operation.
	ErrInvalidState = errors.New("invalid room state")
	// ErrNotHost is returned when a non-host attempts a host-only operation.
	ErrNotHost = errors.New("only the host may do this")
	// ErrAlreadySubmitted is returned for a second submission to the same question.
	ErrAlreadySubmitted = errors.New("answer already submitted")
	// ErrInvalidQuestionSet rejects malformed input at room creation.
	ErrInvalidQuestionSet = errors.New("invalid question set")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrInvalidMessage rejects empty or oversized chat messages.
	ErrInvalidMessage = errors.New("invalid chat message")
	// ErrInvalidInput rejects requests missing a required field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInviteCodeTaken signals an invite code collision in the registry.
	ErrInviteCodeTaken = errors.New("invite code already in use")
	// ErrProviderQuota is returned when the question provider is rate limited or out of quota.
	ErrProviderQuota = errors.New("question provider quota exceeded")
)

// ErrQuestionOpen is returned when the host advances before everyone answered or the timer ran out.
var ErrQuestionOpen = fmt.Errorf("%w: current question still open", ErrInvalidState)
