package processor

import "errors"

// 服务层错误分类，API层据此映射HTTP状态码:
// NotFound类 -> 404, Conflict类 -> 409, Forbidden -> 403, DataIntegrity -> 500
var (
	// ErrJobNotFound 岗位不存在
	ErrJobNotFound = errors.New("job not found")

	// ErrCandidateNotFound 候选人不存在（尚未上传过简历）
	ErrCandidateNotFound = errors.New("candidate not found")

	// ErrQuizNotFound 岗位尚无测验
	ErrQuizNotFound = errors.New("quiz not found")

	// ErrRankingNotFound 岗位尚无排名记录
	ErrRankingNotFound = errors.New("ranking not found")

	// ErrDuplicateApplication 同一候选人重复投递同一岗位
	ErrDuplicateApplication = errors.New("duplicate application")

	// ErrForbidden 角色不满足操作要求
	ErrForbidden = errors.New("operation not permitted for this role")

	// ErrQuizDataCorrupt 已落库的测验题目无法解析。
	// 测验损坏后没有安全的兜底方案，该错误对请求是致命的
	ErrQuizDataCorrupt = errors.New("stored quiz data is corrupt")
)
