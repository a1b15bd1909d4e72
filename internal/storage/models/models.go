package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// User 用户表，招聘官或候选人
type User struct {
	UserID    string    `gorm:"type:char(36);primaryKey"`
	Username  string    `gorm:"type:varchar(255);uniqueIndex:idx_users_username_unique;not null"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex:idx_users_email_unique;not null"`
	Role      string    `gorm:"type:varchar(50);not null;index:idx_users_role"` // recruiter 或 candidate
	APIToken  string    `gorm:"type:char(64);uniqueIndex:idx_users_api_token_unique;not null"`
	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

// Candidate 候选人画像表，每个用户至多一条
type Candidate struct {
	CandidateID     string         `gorm:"type:char(36);primaryKey"`
	UserID          string         `gorm:"type:char(36);uniqueIndex:idx_candidates_user_id_unique;not null"`
	Name            string         `gorm:"type:varchar(255)"`
	Email           string         `gorm:"type:varchar(255)"` // 简历中提取的联系邮箱，提取失败时为 "Unknown"
	Phone           string         `gorm:"type:varchar(50)"`  // 简历中提取的电话，提取失败时为空
	SkillsJSON      datatypes.JSON `gorm:"type:json"`
	TotalExperience float64        `gorm:"type:double"`       // 总工作年限，提取失败时为0
	CurrentRole     string         `gorm:"type:varchar(255)"` // 当前职位
	CompaniesJSON   datatypes.JSON `gorm:"type:json"`
	ResumeText      string         `gorm:"type:mediumtext"`    // 简历全文
	ResumeObjectKey string         `gorm:"type:varchar(1024)"` // MinIO中原始简历文件的对象键
	VectorSlot      *int64         `gorm:"type:bigint"`        // 相似度索引中的槽位号，未入索引时为NULL
	CreatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	User *User `gorm:"foreignKey:UserID;references:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// Job 岗位信息表
type Job struct {
	JobID           string    `gorm:"type:char(36);primaryKey"`
	Title           string    `gorm:"type:varchar(255);not null"`
	Description     string    `gorm:"type:text;not null"`
	CreatedByUserID string    `gorm:"type:char(36);index:idx_jobs_created_by"`
	CreatedAt       time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt       time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// Application 投递记录表，(岗位,候选人)组合唯一
type Application struct {
	ApplicationID string    `gorm:"type:char(36);primaryKey"`
	JobID         string    `gorm:"type:char(36);not null;uniqueIndex:idx_app_job_candidate_unique,priority:1;index:idx_app_job_id"`
	CandidateID   string    `gorm:"type:char(36);not null;uniqueIndex:idx_app_job_candidate_unique,priority:2;index:idx_app_candidate_id"`
	Status        string    `gorm:"type:varchar(50);default:'Applied';index:idx_app_status"`
	AppliedAt     time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Job       *Job       `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Application) TableName() string {
	return "applications"
}

// MatchResult 岗位-候选人匹配评估表，(岗位,候选人)组合唯一，重复评估时覆盖。
// 三个分项均为0-100的百分比，排名计算使用overall_match_score
type MatchResult struct {
	MatchID                   uint64    `gorm:"primaryKey;autoIncrement"`
	JobID                     string    `gorm:"type:char(36);not null;uniqueIndex:idx_mr_job_candidate_unique,priority:1;index:idx_mr_job_id_score,priority:1"`
	CandidateID               string    `gorm:"type:char(36);not null;uniqueIndex:idx_mr_job_candidate_unique,priority:2"`
	SkillMatchPercentage      float64   `gorm:"type:double"`
	ExperienceMatchPercentage float64   `gorm:"type:double"`
	OverallMatchScore         float64   `gorm:"type:double;index:idx_mr_job_id_score,priority:2"`
	Reasoning                 string    `gorm:"type:text"` // 失败时记录降级原因文本
	EvaluatedAt               time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Job       *Job       `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (MatchResult) TableName() string {
	return "match_results"
}

// Quiz 测验表，存储某岗位的一套题目；追加式，同岗位最新一条生效
type Quiz struct {
	QuizID        string         `gorm:"type:char(36);primaryKey"`
	JobID         string         `gorm:"type:char(36);not null;index:idx_quiz_job"`
	QuestionsJSON datatypes.JSON `gorm:"type:json;not null"` // QuizQuestion数组
	Fallback      bool           `gorm:"default:false"`      // 是否为通用兜底题目
	CreatedAt     time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Job *Job `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// QuizResult 测验结果表，追加式记录
type QuizResult struct {
	ResultID    uint64         `gorm:"primaryKey;autoIncrement"`
	QuizID      string         `gorm:"type:char(36);not null;index:idx_qr_quiz_id"`
	JobID       string         `gorm:"type:char(36);not null;index:idx_qr_job_candidate,priority:1"`
	CandidateID string         `gorm:"type:char(36);not null;index:idx_qr_job_candidate,priority:2"`
	AnswersJSON datatypes.JSON `gorm:"type:json"` // 候选人提交的顺序答案
	Score       float64        `gorm:"type:double"`
	SubmittedAt time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Quiz *Quiz `gorm:"foreignKey:QuizID;references:QuizID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (QuizResult) TableName() string {
	return "quiz_results"
}

// FinalRanking 最终排名表，追加式记录，同一(岗位,候选人)取最新一条
type FinalRanking struct {
	RankingID   uint64    `gorm:"primaryKey;autoIncrement"`
	JobID       string    `gorm:"type:char(36);not null;index:idx_fr_job_id_score,priority:1"`
	CandidateID string    `gorm:"type:char(36);not null;index:idx_fr_candidate_id"`
	MatchScore  float64   `gorm:"type:double"`
	QuizScore   float64   `gorm:"type:double"`
	FinalScore  float64   `gorm:"type:double;index:idx_fr_job_id_score,priority:2"`
	Invited     bool      `gorm:"default:false"` // 是否触发了面试邀约
	CreatedAt   time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Job       *Job       `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (FinalRanking) TableName() string {
	return "final_rankings"
}

// StringSliceToJSON Helper function to convert []string to datatypes.JSON
func StringSliceToJSON(s []string) (datatypes.JSON, error) {
	if s == nil {
		s = []string{}
	}
	bytes, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}

// JSONToStringSlice Helper function to convert datatypes.JSON back to []string
func JSONToStringSlice(j datatypes.JSON) ([]string, error) {
	if len(j) == 0 {
		return []string{}, nil
	}
	var s []string
	if err := json.Unmarshal(j, &s); err != nil {
		return nil, err
	}
	return s, nil
}
