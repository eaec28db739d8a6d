package treasury

import (
	"encoding/binary"

	"portfolium/native/synthetic"
)

var (
	ownerKey      = []byte("treasury/owner")
	portfoliumKey = []byte("treasury/portfolium")
	tokenListKey  = []byte("treasury/tokens")
	tokenPrefix   = []byte("treasury/token/")
	pendingPrefix = []byte("treasury/pending/")
)

const ledgerNamespace = "treasury"

func tokenKey(asset [20]byte) []byte {
	buf := make([]byte, 0, len(tokenPrefix)+len(asset))
	buf = append(buf, tokenPrefix...)
	return append(buf, asset[:]...)
}

func pendingKey(token [20]byte, side synthetic.OrderSide, index uint64) []byte {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	buf := make([]byte, 0, len(pendingPrefix)+len(token)+1+len(idx))
	buf = append(buf, pendingPrefix...)
	buf = append(buf, token[:]...)
	buf = append(buf, byte(side))
	return append(buf, idx[:]...)
}
