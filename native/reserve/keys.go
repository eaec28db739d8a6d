package reserve

var (
	ownerKey     = []byte("reserve/owner")
	accountsKey  = []byte("reserve/accounts")
	accessPrefix = []byte("reserve/access/")
)

func accessKey(account [20]byte) []byte {
	buf := make([]byte, 0, len(accessPrefix)+len(account))
	buf = append(buf, accessPrefix...)
	return append(buf, account[:]...)
}
