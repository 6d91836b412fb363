package contracts

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Staking pool event names.
const (
	EventStaked         = "Staked"
	EventUnstaked       = "Unstaked"
	EventRewardsClaimed = "RewardsClaimed"
	EventCompounded     = "Compounded"
)

// ErrUnknownEvent is returned for logs whose topic is not in the ABI.
var ErrUnknownEvent = errors.New("unknown event")

// Event is a decoded staking pool event.
type Event struct {
	Name        string
	User        common.Address
	Amount      *big.Int
	TxHash      common.Hash
	BlockNumber uint64
}

func (e Event) String() string {
	return fmt.Sprintf("%s user=%s amount=%s", e.Name, e.User.Hex(), e.Amount)
}

// DecodeEvent decodes a single log emitted by a contract with the given ABI.
// All pool events share the (address indexed user, uint256 amount) layout.
func DecodeEvent(parsed abi.ABI, log *types.Log) (Event, error) {
	if log == nil || len(log.Topics) == 0 {
		return Event{}, fmt.Errorf("%w: log has no topics", ErrUnknownEvent)
	}
	ev, err := parsed.EventByID(log.Topics[0])
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, log.Topics[0].Hex())
	}

	out := Event{
		Name:        ev.Name,
		Amount:      big.NewInt(0),
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
	}
	if len(log.Topics) > 1 {
		out.User = common.BytesToAddress(log.Topics[1].Bytes())
	}

	values, err := parsed.Unpack(ev.Name, log.Data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to unpack %s: %w", ev.Name, err)
	}
	if len(values) > 0 {
		if amount, ok := values[0].(*big.Int); ok {
			out.Amount = amount
		}
	}
	return out, nil
}

// DecodeReceipt returns the decodable events emitted by contract in receipt.
// Logs from other contracts or with unknown topics are skipped.
func DecodeReceipt(parsed abi.ABI, contract common.Address, receipt *types.Receipt) []Event {
	if receipt == nil {
		return nil
	}
	var events []Event
	for _, log := range receipt.Logs {
		if log == nil || log.Address != contract {
			continue
		}
		ev, err := DecodeEvent(parsed, log)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events
}
