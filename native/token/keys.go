package token

var (
	tokenCountKey = []byte("token/count")
	tokenListKey  = []byte("token/list")
	detailsPrefix = []byte("token/details/")
)

const ledgerNamespace = "token"

func detailsKey(token [20]byte) []byte {
	buf := make([]byte, 0, len(detailsPrefix)+len(token))
	buf = append(buf, detailsPrefix...)
	return append(buf, token[:]...)
}
