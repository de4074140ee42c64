package rag

import "errors"

// 领域层可区分错误。编排层用 errors.Is 匹配后翻译为终态状态或 HTTP 错误，
// 不把原始错误直接抛给调用方。
var (
	// ErrEmbedderUnavailable Embedding 模型未初始化（启动时缺少凭证/模型配置）
	ErrEmbedderUnavailable = errors.New("embedding model not initialized")

	// ErrUnsupportedFileType 文件扩展名不在支持范围内
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrDuplicateDocument 台账主键冲突
	ErrDuplicateDocument = errors.New("document already exists")
)
