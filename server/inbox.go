package server

import "fruitmart/protocol"

// 房间协程的入站命令；成员表只在房间协程中读写

type joinCmd struct {
	m     *Member
	reply chan error
}

type leaveCmd struct {
	key MemberKey
}

// frameCmd 连接读到的一帧（已解码）
type frameCmd struct {
	from  MemberKey
	frame protocol.Frame
}

type membersCmd struct {
	reply chan []MemberInfo
}
