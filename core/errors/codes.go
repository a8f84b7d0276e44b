package errors

import (
	stderrors "errors"

	"vestake/native/bank"
	"vestake/native/vestaking"
	"vestake/native/vetoken"
)

// Stable error codes exposed to API clients and metrics.
const (
	CodeInvalidAmount                  = "InvalidAmount"
	CodeInsufficientBalance            = "InsufficientBalance"
	CodeInsufficientAllowance          = "InsufficientAllowance"
	CodeNothingStaked                  = "NothingStaked"
	CodeUnauthorized                   = "Unauthorized"
	CodeParameterOutOfRange            = "ParameterOutOfRange"
	CodeOwnershipRenunciationForbidden = "OwnershipRenunciationForbidden"
	CodeInvalidAddress                 = "InvalidAddress"
	CodeArithmeticOverflow             = "ArithmeticOverflow"
	CodeNotInitialised                 = "NotInitialised"
	CodeInternal                       = "Internal"
)

var classes = []struct {
	code     string
	sentinel []error
}{
	{CodeInvalidAmount, []error{vestaking.ErrInvalidAmount, vetoken.ErrInvalidAmount, bank.ErrInvalidAmount}},
	{CodeInsufficientAllowance, []error{bank.ErrInsufficientAllowance}},
	{CodeInsufficientBalance, []error{vestaking.ErrInsufficientBalance, vetoken.ErrInsufficientBalance, bank.ErrInsufficientBalance}},
	{CodeNothingStaked, []error{vestaking.ErrNothingStaked}},
	{CodeUnauthorized, []error{vestaking.ErrUnauthorized, vetoken.ErrUnauthorized, bank.ErrUnauthorized}},
	{CodeParameterOutOfRange, []error{vestaking.ErrParameterOutOfRange}},
	{CodeOwnershipRenunciationForbidden, []error{vetoken.ErrOwnershipRenunciationForbidden}},
	{CodeInvalidAddress, []error{vestaking.ErrInvalidAddress, vetoken.ErrInvalidAddress, bank.ErrInvalidAddress}},
	{CodeArithmeticOverflow, []error{vestaking.ErrArithmeticOverflow, vetoken.ErrArithmeticOverflow, bank.ErrArithmeticOverflow}},
	{CodeNotInitialised, []error{vestaking.ErrNotInitialised, vetoken.ErrNotRegistered, bank.ErrNotRegistered}},
}

// Code classifies err into one of the stable error codes. Nil yields "".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, class := range classes {
		for _, sentinel := range class.sentinel {
			if stderrors.Is(err, sentinel) {
				return class.code
			}
		}
	}
	return CodeInternal
}
