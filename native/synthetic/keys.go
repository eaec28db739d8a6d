package synthetic

import "encoding/binary"

var (
	ownerKey       = []byte("synthetic/owner")
	applicationKey = []byte("synthetic/application")
	tokenCountKey  = []byte("synthetic/count")
	tokenListKey   = []byte("synthetic/list")
	detailsPrefix  = []byte("synthetic/details/")
	orderPrefix    = []byte("synthetic/order/")
	orderCountTag  = []byte("/count")
)

const ledgerNamespace = "synthetic"

func detailsKey(token [20]byte) []byte {
	buf := make([]byte, 0, len(detailsPrefix)+len(token))
	buf = append(buf, detailsPrefix...)
	return append(buf, token[:]...)
}

func orderBookPrefix(token [20]byte, side OrderSide) []byte {
	buf := make([]byte, 0, len(orderPrefix)+len(token)+1)
	buf = append(buf, orderPrefix...)
	buf = append(buf, token[:]...)
	return append(buf, byte(side))
}

func orderCountKey(token [20]byte, side OrderSide) []byte {
	return append(orderBookPrefix(token, side), orderCountTag...)
}

func orderKey(token [20]byte, side OrderSide, index uint64) []byte {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	return append(orderBookPrefix(token, side), idx[:]...)
}
