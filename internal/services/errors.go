package services

// Service errors
var (
	ErrSessionNameRequired = &ServiceError{Message: "session name is required"}
	ErrUserNameRequired    = &ServiceError{Message: "user name is required"}
	ErrInvalidVoteValue    = &ServiceError{Message: "value is not a card in the deck"}
	ErrSpectatorVote       = &ServiceError{Message: "spectators cannot vote"}
	ErrStoryTitleRequired  = &ServiceError{Message: "story title is required"}
	ErrInvalidAverage      = &ServiceError{Message: "average must be a non-negative number"}
	ErrChatMessageRequired = &ServiceError{Message: "chat message id and body are required"}
)

// ServiceError represents a service-level error
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}
