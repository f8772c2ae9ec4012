package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ShortHash returns the leading bytes of a transaction id for log lines
func ShortHash(id common.Hash) string {
	return strings.ToUpper(common.Bytes2Hex(id[:4]))
}
