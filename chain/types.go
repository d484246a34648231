package chain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Transaction is an observed chain record. It is fetched on demand from the
// explorer or the RPC node and never persisted.
type Transaction struct {
	Hash          common.Hash
	BlockNumber   uint64
	Time          time.Time
	From          common.Address
	To            *common.Address // nil for contract creation
	Value         *big.Int        // wei
	Failed        bool
	Confirmations uint64
}
