// Package wire defines the staking gRPC contract: method names, message
// shapes and the JSON codec both ends use. Amounts travel as decimal strings.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"vestake/native/vestaking"
)

const (
	ServiceName = "vestake.staking.v1.StakingService"
	CodecName   = "json"

	MethodDeposit          = "/" + ServiceName + "/Deposit"
	MethodWithdraw         = "/" + ServiceName + "/Withdraw"
	MethodClaim            = "/" + ServiceName + "/Claim"
	MethodUpdateRewardVars = "/" + ServiceName + "/UpdateRewardVars"
	MethodPendingReward    = "/" + ServiceName + "/PendingReward"
	MethodGetUser          = "/" + ServiceName + "/GetUser"
	MethodGetLedger        = "/" + ServiceName + "/GetLedger"
	MethodGetParams        = "/" + ServiceName + "/GetParams"
	MethodStreamEvents     = "/" + ServiceName + "/StreamEvents"

	// CallerMetadataKey names the caller when the server runs without
	// token authentication.
	CallerMetadataKey = "x-vestake-caller"
)

// EventStreamDesc describes the server-streaming event feed.
var EventStreamDesc = grpc.StreamDesc{StreamName: "StreamEvents", ServerStreams: true}

type AmountRequest struct {
	Amount string `json:"amount"`
}

type AccountRequest struct {
	Account string `json:"account"`
}

type Empty struct{}

type PendingReply struct {
	Account common.Address        `json:"account"`
	Pending *uint256.Int          `json:"pending"`
	Quote   *vestaking.Settlement `json:"quote"`
}

type EventsRequest struct {
	Type    string `json:"type,omitempty"`
	Account string `json:"account,omitempty"`
}

// Codec marshals messages as JSON. It is selected with the "json" content
// subtype.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %T: %w", v, err)
	}
	return data, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("wire: unmarshal %T: %w", v, err)
	}
	return nil
}

func (Codec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(Codec{})
}
