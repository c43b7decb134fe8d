package model

import "errors"

// 检索链路的错误分类，调用方通过 errors.Is 判断。
var (
	// ErrUnsupportedInput 表示提交了非 PDF 文件，在任何处理之前被拒绝。
	ErrUnsupportedInput = errors.New("unsupported input")
	// ErrEmptyCorpus 表示本次入库没有产生任何可用分块，不会保存索引。
	ErrEmptyCorpus = errors.New("no text extracted from documents")
	// ErrNamespaceNotFound 表示该用户在远端还没有快照。
	ErrNamespaceNotFound = errors.New("namespace not found")
	// ErrRemoteStoreUnavailable 表示对象存储调用失败，不做重试。
	ErrRemoteStoreUnavailable = errors.New("remote store unavailable")
	// ErrConfigurationInvalid 表示配置非法，例如 overlap >= window。
	ErrConfigurationInvalid = errors.New("invalid configuration")
	// ErrCorruptSnapshot 表示远端快照无法反序列化或索引与元数据不一致。
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
	// ErrDimensionMismatch 表示向量维度与索引维度不一致。
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
