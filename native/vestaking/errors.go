package vestaking

import "errors"

var (
	ErrNilState            = errors.New("vestaking: state not configured")
	ErrNotInitialised      = errors.New("vestaking: ledger not initialised")
	ErrAlreadyInitialised  = errors.New("vestaking: ledger already initialised")
	ErrInvalidAmount       = errors.New("vestaking: amount must be greater than zero")
	ErrInsufficientBalance = errors.New("vestaking: cannot withdraw more than currently staked")
	ErrNothingStaked       = errors.New("vestaking: nothing staked")
	ErrUnauthorized        = errors.New("vestaking: caller is not the admin")
	ErrParameterOutOfRange = errors.New("vestaking: parameter out of range")
	ErrInvalidAddress      = errors.New("vestaking: invalid address")
	ErrArithmeticOverflow  = errors.New("vestaking: arithmetic overflow")
)
