package model

import (
	"fmt"
	"strings"
)

// TokenID is the identity of a Token entity.
func TokenID(address string) string {
	return strings.ToLower(address)
}

// PoolID is the identity of a Pool entity.
func PoolID(address string) string {
	return strings.ToLower(address)
}

// DebtTokenMetaID is the composite identity of a DebtTokenMeta entity.
func DebtTokenMetaID(token, borrower string) string {
	return strings.ToLower(token) + "-" + strings.ToLower(borrower)
}

// PositionID is the composite identity of a Position entity.
func PositionID(pool, user string) string {
	return strings.ToLower(pool) + "-" + strings.ToLower(user)
}

// BorrowerHistoryID identifies a history row by the log that produced it.
// Zero padding makes lexical order chronological.
func BorrowerHistoryID(blockNumber, logIndex uint64) string {
	return fmt.Sprintf("%012d-%06d", blockNumber, logIndex)
}
