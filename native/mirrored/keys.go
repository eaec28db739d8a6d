package mirrored

var (
	tokenCountKey = []byte("mirrored/count")
	tokenListKey  = []byte("mirrored/list")
	detailsPrefix = []byte("mirrored/details/")
)

const ledgerNamespace = "mirrored"

func detailsKey(token [20]byte) []byte {
	buf := make([]byte, 0, len(detailsPrefix)+len(token))
	buf = append(buf, detailsPrefix...)
	return append(buf, token[:]...)
}
