package bank

import "errors"

var (
	ErrNilState              = errors.New("bank: state not configured")
	ErrNotRegistered         = errors.New("bank: asset not registered")
	ErrAlreadyRegistered     = errors.New("bank: asset already registered")
	ErrInvalidAmount         = errors.New("bank: amount must be greater than zero")
	ErrInvalidAddress        = errors.New("bank: invalid address")
	ErrInsufficientBalance   = errors.New("bank: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("bank: transfer amount exceeds allowance")
	ErrUnauthorized          = errors.New("bank: caller is not the issuer")
	ErrArithmeticOverflow    = errors.New("bank: arithmetic overflow")
)
