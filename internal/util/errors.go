package util

import "errors"

var (
	ErrUserNotFound     = errors.New("用户不存在")
	ErrEmailRegistered  = errors.New("该邮箱已被注册")
	ErrPermissionDenied = errors.New("permission denied")

	ErrSessionNotFound    = errors.New("会话不存在")
	ErrEmptyPrompt        = errors.New("请输入出题要求")
	ErrNoImages           = errors.New("请上传学生答题图片")
	ErrPracticeNotReady   = errors.New("请先生成练习题")
	ErrNoGradingResults   = errors.New("请先批改学生答案")
	ErrUnsupportedImage   = errors.New("不支持的图片格式")
	ErrNoQuestionsMatched = errors.New("没有匹配到任何题目")
)
