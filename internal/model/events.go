package model

import "time"

// EventKind 内核上报的文件 I/O 类别 (封闭集合)
type EventKind uint8

const (
	KindDirEnum   EventKind = iota + 1 // 目录枚举
	KindRead                           // 读文件
	KindWrite                          // 写文件
	KindQueryInfo                      // 元数据查询
)

func (k EventKind) String() string {
	switch k {
	case KindDirEnum:
		return "DIR_ENUM"
	case KindRead:
		return "READ"
	case KindWrite:
		return "WRITE"
	case KindQueryInfo:
		return "QUERY_INFO"
	}
	return "UNKNOWN"
}

// RawIOEvent 一次文件访问事件，只被消费一次
type RawIOEvent struct {
	Kind      EventKind
	Path      string // 被访问的文件或目录
	PID       int32  // 进程ID, 0 和 4 为保留值
	ProcName  string // 进程名 (尽力获取，可能为空或占位符)
	TimeStamp time.Time
}

// KillRecord 一次成功的终止
type KillRecord struct {
	Seq       int64
	ProcName  string
	PID       int32
	Path      string
	Kind      EventKind
	FileType  string // 被访问文件的真实类型 (根据文件头)
	TimeStamp time.Time
}

// String 给展示层的一行文本
func (r KillRecord) String() string {
	return r.ProcName
}
