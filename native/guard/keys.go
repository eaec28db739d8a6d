package guard

import "encoding/binary"

var (
	configKey        = []byte("guard/config")
	requestCountKey  = []byte("guard/request/count")
	requestPrefix    = []byte("guard/request/")
	rolePrefix       = []byte("guard/role/")
	roleMemberPrefix = []byte("guard/members/")
)

func requestKey(id uint64) []byte {
	buf := make([]byte, len(requestPrefix)+8)
	copy(buf, requestPrefix)
	binary.BigEndian.PutUint64(buf[len(requestPrefix):], id)
	return buf
}

func roleKey(role [32]byte, account [20]byte) []byte {
	buf := make([]byte, 0, len(rolePrefix)+len(role)+len(account))
	buf = append(buf, rolePrefix...)
	buf = append(buf, role[:]...)
	return append(buf, account[:]...)
}

func roleMembersKey(role [32]byte) []byte {
	buf := make([]byte, 0, len(roleMemberPrefix)+len(role))
	buf = append(buf, roleMemberPrefix...)
	return append(buf, role[:]...)
}
