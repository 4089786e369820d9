package email

import "errors"

var (
	// ErrNoRecipient indicates no recipient was specified.
	ErrNoRecipient = errors.New("email must have a recipient")

	// ErrInvalidRecipient indicates the recipient is not a single valid address.
	ErrInvalidRecipient = errors.New("invalid recipient address")

	// ErrNoSender indicates the sender address is not configured.
	ErrNoSender = errors.New("email must have a sender address")

	// ErrAttachmentMissing indicates an attachment path does not resolve to a file.
	// The builder drops such attachments instead of failing.
	ErrAttachmentMissing = errors.New("attachment not found")
)
