package membership

import "errors"

// Validation errors are detected from in-memory state and returned before
// any write. Storage failures are returned wrapped, with the previous
// chat state fully intact.
var (
	ErrChatNotFound  = errors.New("chat not found")
	ErrNotGroupChat  = errors.New("not a group chat")
	ErrNotAuthorized = errors.New("only the group creator can do this")
	ErrNotMember     = errors.New("not a member of this chat")
	ErrGroupFull     = errors.New("group member limit of 100 reached")
	ErrTooFewMembers = errors.New("group needs at least 3 members")
	ErrRemoveCreator = errors.New("creator must leave the group instead of being removed")
)
