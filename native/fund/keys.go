package fund

var (
	configKey          = []byte("fund/config")
	supportedListKey   = []byte("fund/supported")
	portfolioListKey   = []byte("fund/portfolios")
	supportedPrefix    = []byte("fund/supported/")
	portfolioPrefix    = []byte("fund/portfolio/")
	assetsPrefix       = []byte("fund/assets/")
	holdingPrefix      = []byte("fund/holding/")
	managersPrefix     = []byte("fund/managers/")
	shareholdersPrefix = []byte("fund/shareholders/")
)

const sharesNamespace = "fund/shares"

func addressKey(prefix []byte, addr [20]byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(addr))
	buf = append(buf, prefix...)
	return append(buf, addr[:]...)
}

func supportedKey(asset [20]byte) []byte { return addressKey(supportedPrefix, asset) }

func portfolioKey(owner [20]byte) []byte { return addressKey(portfolioPrefix, owner) }

func assetsKey(owner [20]byte) []byte { return addressKey(assetsPrefix, owner) }

func managersKey(owner [20]byte) []byte { return addressKey(managersPrefix, owner) }

func shareholdersKey(owner [20]byte) []byte { return addressKey(shareholdersPrefix, owner) }

func holdingKey(owner, asset [20]byte) []byte {
	buf := make([]byte, 0, len(holdingPrefix)+40)
	buf = append(buf, holdingPrefix...)
	buf = append(buf, owner[:]...)
	return append(buf, asset[:]...)
}
