package constants

import "time"

const (
	// LLM输入截断上限（字符数），用于控制调用成本和延迟
	ResumePromptMaxChars = 6000 // 简历结构化提取时的简历文本上限
	MatchPromptMaxChars  = 3000 // 匹配评估时简历/JD各自的上限
	QuizPromptMaxChars   = 3000 // 出题时JD文本的上限

	// QuizQuestionCount 每份测验的目标题目数
	QuizQuestionCount = 10
	// QuizOptionCount 每道选择题的选项数
	QuizOptionCount = 4

	// 最终得分权重与通过阈值
	MatchScoreWeight = 0.6  // 匹配得分权重
	QuizScoreWeight  = 0.4  // 测验得分权重
	PassThreshold    = 50.0 // 最终得分达到该值（含）即发送面试邀请

	// DefaultSimilarTopK 相似候选人检索的默认返回条数，配置未给出TopK时使用
	DefaultSimilarTopK = 5

	// PhoneMinDigits 电话号码去除非数字字符后的最小位数，低于该值视为年份等噪声
	PhoneMinDigits = 10

	// UnknownContactValue 联系方式缺失时的占位值
	UnknownContactValue = "Unknown"

	// JDCacheDuration JD文本在Redis中的缓存时长
	JDCacheDuration = 24 * time.Hour
)

// 申请状态枚举
const (
	ApplicationStatusApplied     = "Applied"
	ApplicationStatusReviewed    = "Reviewed"
	ApplicationStatusShortlisted = "Shortlisted"
	ApplicationStatusRejected    = "Rejected"
)

// 用户角色枚举
const (
	RoleRecruiter = "recruiter"
	RoleCandidate = "candidate"
)
