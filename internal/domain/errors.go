package domain

import "errors"

// 评估引擎统一错误,调用方一律用 errors.Is 判别(允许 %w 包装附加上下文)
var (
	// ErrUnknownInstrument 请求了未注册的量表类型
	ErrUnknownInstrument = errors.New("unknown instrument type")

	// ErrInvalidAnswer 答案值超出量表取值域
	ErrInvalidAnswer = errors.New("answer value out of range")

	// ErrInvalidQuestionIndex 题目下标超出量表题目数
	ErrInvalidQuestionIndex = errors.New("question index out of range")

	// ErrIncompleteAssessment 评分要求全部题目已作答
	ErrIncompleteAssessment = errors.New("assessment incomplete")

	// ErrSessionNotFound 主存储和旧存储都没有可恢复的会话
	ErrSessionNotFound = errors.New("no resumable session")

	// ErrSessionCreationFailed 初始快照写入失败,会话未建立
	ErrSessionCreationFailed = errors.New("session creation failed")

	// ErrStorageUnavailable 存储层不可用(包装底层错误)
	ErrStorageUnavailable = errors.New("session storage unavailable")
)
