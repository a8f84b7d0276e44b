package vetoken

import "errors"

var (
	ErrNilState                       = errors.New("vetoken: state not configured")
	ErrNotRegistered                  = errors.New("vetoken: token not registered")
	ErrAlreadyRegistered              = errors.New("vetoken: token already registered")
	ErrUnauthorized                   = errors.New("vetoken: caller is not the owner")
	ErrInvalidAddress                 = errors.New("vetoken: invalid address")
	ErrInvalidAmount                  = errors.New("vetoken: amount must be greater than zero")
	ErrInsufficientBalance            = errors.New("vetoken: burn amount exceeds balance")
	ErrOwnershipRenunciationForbidden = errors.New("vetoken: cannot renounce, can only transfer ownership")
	ErrInvalidMetadata                = errors.New("vetoken: invalid metadata")
	ErrArithmeticOverflow             = errors.New("vetoken: arithmetic overflow")
)
