package model

// FanotifyEventMetadataSize sizeof(struct fanotify_event_metadata)
const (
	FanotifyEventMetadataSize = 24
)

// FanotifyEventMetadata 对应 C 结构体 fanotify_event_metadata
// 非 FID 模式下每个事件只有这一段，Fd 指向被访问的文件
/*
struct fanotify_event_metadata {
	__u32 event_len;
	__u8 vers;
	__u8 reserved;
	__u16 metadata_len;
	__aligned_u64 mask;
	__s32 fd;
	__s32 pid;
};
*/
type FanotifyEventMetadata struct {
	EventLen    uint32
	Vers        uint8
	Reserved    uint8
	MetadataLen uint16
	Mask        uint64
	Fd          int32
	Pid         int32
}
