package types

// Principal 表示经过认证的请求主体
type Principal struct {
	UserID string // 用户ID
	Role   string // 角色: recruiter 或 candidate
	Email  string // 用户邮箱
}

// CandidateProfile 从简历文本中提取出的结构化画像
type CandidateProfile struct {
	// 候选人姓名
	Name string `json:"name"`

	// 联系邮箱，提取失败时为 "Unknown"
	Email string `json:"email"`

	// 联系电话，提取失败时为空字符串
	Phone string `json:"phone"`

	// 技能列表
	Skills []string `json:"skills"`

	// 总工作年限，非负；提取失败时为0
	TotalExperience float64 `json:"total_experience"`

	// 当前职位
	CurrentRole string `json:"current_role"`

	// 任职过的公司
	Companies []string `json:"companies"`

	// 原始简历文本
	RawText string `json:"-"`
}

// MatchEvaluation 候选人与岗位的LLM匹配评估结果。
// 三个分项均为0-100的百分比
type MatchEvaluation struct {
	// 技能匹配度
	SkillMatchPercentage float64 `json:"skill_match_percentage"`

	// 经验匹配度
	ExperienceMatchPercentage float64 `json:"experience_match_percentage"`

	// 综合匹配分，排名计算使用该值
	OverallMatchScore float64 `json:"overall_match_score"`

	// 评估理由；LLM调用失败时为 "Error querying LLM"，
	// 响应无法解析时为 "Error parsing LLM response"
	Reasoning string `json:"reasoning"`

	// 是否为降级结果（上游失败时的兜底值）
	Degraded bool `json:"-"`
}

// QuizQuestion 测验中的单个选择题
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// QuizAnswerKey 从题目列表提取顺序答案
func QuizAnswerKey(questions []QuizQuestion) []string {
	answers := make([]string, 0, len(questions))
	for _, q := range questions {
		answers = append(answers, q.CorrectAnswer)
	}
	return answers
}

// RankingEntry 岗位排名中的单条记录
type RankingEntry struct {
	Rank           int     `json:"rank"` // 1起始，按排序位置赋值
	CandidateID    string  `json:"candidate_id"`
	CandidateName  string  `json:"candidate_name"`
	CandidateEmail string  `json:"candidate_email"`
	MatchScore     float64 `json:"match_score"`
	QuizScore      float64 `json:"quiz_score"`
	FinalScore     float64 `json:"final_score"`
	Invited        bool    `json:"invited"` // 是否达到邀约阈值
}

// SimilarCandidate 向量检索返回的相似候选人
type SimilarCandidate struct {
	CandidateID string  `json:"candidate_id"`
	Distance    float64 `json:"distance"` // 平方L2距离，越小越相似
}
