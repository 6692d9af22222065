package service

import "errors"

var (
	ErrChatNotFound      = errors.New("chat not found")
	ErrNotAuthorized     = errors.New("not authorized for this chat")
	ErrCannotChatSelf    = errors.New("cannot start a chat with yourself")
	ErrUserNotFound      = errors.New("user not found")
	ErrRecipientMismatch = errors.New("recipient is not the other participant of this chat")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrStoryNotFound     = errors.New("story not found")
)
