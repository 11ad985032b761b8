package event

import "github.com/google/uuid"

// CommandType discriminator for command payloads
type CommandType int32

const (
	CommandTypeUnknown CommandType = iota
	CommandTypeCreatePool
	CommandTypeBuyInsurance
	CommandTypeSellInsurance
	CommandTypeWithdraw
	CommandTypeClaimDecision
	CommandTypeTerminateDecision
	CommandTypeBlockTick
)

// Envelope wraps every applied command in the log
type Envelope struct {
	// Global monotonic sequence assigned by the core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Command type discriminator
	CommandType CommandType

	// Pool context (nil for global commands like BlockTick)
	PoolID *uuid.UUID

	// Block height at which the command was applied (versioned input,
	// NOT wall-clock)
	Height int64

	// JSON-encoded command payload
	Payload []byte

	// SHA-256 of registry state AFTER applying this command
	StateHash [32]byte

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte
}

// Command is the interface all command payloads implement
type Command interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// CommandType returns the discriminator
	CommandType() CommandType

	// PoolID returns the pool context (nil for global commands)
	PoolID() *uuid.UUID

	// SourceSequence returns the upstream ordering key
	SourceSequence() int64
}

func (ct CommandType) String() string {
	switch ct {
	case CommandTypeCreatePool:
		return "CreatePool"
	case CommandTypeBuyInsurance:
		return "BuyInsurance"
	case CommandTypeSellInsurance:
		return "SellInsurance"
	case CommandTypeWithdraw:
		return "Withdraw"
	case CommandTypeClaimDecision:
		return "ClaimDecision"
	case CommandTypeTerminateDecision:
		return "TerminateDecision"
	case CommandTypeBlockTick:
		return "BlockTick"
	default:
		return "Unknown"
	}
}
