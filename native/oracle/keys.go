package oracle

var (
	ownerKey        = []byte("oracle/owner")
	applicationKey  = []byte("oracle/application")
	trustedPrefix   = []byte("oracle/trusted/")
	pricePrefix     = []byte("oracle/price/")
	originPrefix    = []byte("oracle/origin/")
	feedPrefix      = []byte("oracle/feed/")
	feedRoundPrefix = []byte("oracle/round/")
	assetTypePrefix = []byte("oracle/type/")
)

func addressKey(prefix []byte, addr [20]byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(addr))
	buf = append(buf, prefix...)
	return append(buf, addr[:]...)
}

func trustedKey(account [20]byte) []byte { return addressKey(trustedPrefix, account) }

func priceKey(asset [20]byte) []byte { return addressKey(pricePrefix, asset) }

func originKey(asset [20]byte) []byte { return addressKey(originPrefix, asset) }

func feedKey(asset [20]byte) []byte { return addressKey(feedPrefix, asset) }

func feedRoundKey(feed [20]byte) []byte { return addressKey(feedRoundPrefix, feed) }

func assetTypeKey(asset [20]byte) []byte { return addressKey(assetTypePrefix, asset) }
