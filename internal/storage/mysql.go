package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"hiregenius-go/internal/config"
	"hiregenius-go/internal/storage/models"

	gomysql "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("hiregenius-go/storage/mysql")

// ErrDuplicateKey 唯一索引冲突，例如同一候选人重复投递同一岗位
var ErrDuplicateKey = errors.New("唯一索引冲突")

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	// 为各种操作类型注册回调
	cb := db.Callback()

	// 为所有CRUD操作注册Before和After回调
	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		// 从DB获取上下文
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		// 获取操作表名，如果为空则使用"unknown"
		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		// 创建一个新的span
		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		// 获取SQL语句（如果有）
		sqlStatement := db.Statement.SQL.String()
		if sqlStatement != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", sqlStatement),
			))
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)

		// 将span保存在DB上下文中，以便在after回调中使用
		db.Statement.Context = context.WithValue(newCtx, "otel-span", span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		// 从DB上下文中获取span
		span, ok := db.Statement.Context.Value("otel-span").(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		// 记录错误（如果有），但正确处理ErrRecordNotFound
		if db.Error != nil {
			if db.Error == gorm.ErrRecordNotFound {
				// ErrRecordNotFound 是业务逻辑正常情况的一部分，不应作为错误处理
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.SetAttributes(attribute.String("error.type", "database_error"))
				span.SetAttributes(attribute.String("error.message", db.Error.Error()))
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		dbSystem:       "mysql",
		disableErrSkip: true,
	}
}

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	// 构建DSN，添加超时设置
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	// 配置GORM日志级别
	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Info // 默认Info级别
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,                             // 禁用自动外键创建
		Logger:                                   logger.Default.LogMode(logLevel), // 设置日志级别
		PrepareStmt:                              true,                             // 开启预编译语句缓存
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	// 设置连接池参数
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{
		db:  db,
		cfg: cfg,
	}

	// 注册OpenTelemetry追踪插件
	tracingPlugin := NewGormTracingPlugin(cfg.Database)
	if err := db.Use(tracingPlugin); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	// 使用 GORM 的 AutoMigrate 功能自动迁移表结构
	if err := m.autoMigrateSchema(); err != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	currentLogger := m.db.Logger

	// 创建一个静默的logger以关闭SQL日志打印
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	// 列出所有需要迁移的模型
	err := silentDB.AutoMigrate(
		&models.User{},
		&models.Candidate{},
		&models.Job{},
		&models.Application{},
		&models.MatchResult{},
		&models.Quiz{},
		&models.QuizResult{},
		&models.FinalRanking{},
	)

	// 恢复原来的日志记录器
	m.db = m.db.Session(&gorm.Session{Logger: currentLogger})

	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// isDuplicateKeyError 判断是否为MySQL唯一索引冲突(错误码1062)
func isDuplicateKeyError(err error) bool {
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// GetUserByAPIToken 通过API令牌查找用户，用于认证
func (m *MySQL) GetUserByAPIToken(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	if err := m.db.WithContext(ctx).Where("api_token = ?", token).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID 通过用户ID获取用户
func (m *MySQL) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := m.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser 创建新用户
func (m *MySQL) CreateUser(ctx context.Context, user *models.User) error {
	if err := m.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("用户名或邮箱已存在: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("创建用户失败: %w", err)
	}
	return nil
}

// GetCandidateByUserID 通过用户ID获取候选人画像
func (m *MySQL) GetCandidateByUserID(ctx context.Context, userID string) (*models.Candidate, error) {
	var candidate models.Candidate
	if err := m.db.WithContext(ctx).Where("user_id = ?", userID).First(&candidate).Error; err != nil {
		return nil, err
	}
	return &candidate, nil
}

// GetCandidateByID 通过候选人ID获取画像
func (m *MySQL) GetCandidateByID(ctx context.Context, candidateID string) (*models.Candidate, error) {
	var candidate models.Candidate
	if err := m.db.WithContext(ctx).Where("candidate_id = ?", candidateID).First(&candidate).Error; err != nil {
		return nil, err
	}
	return &candidate, nil
}

// CreateCandidate 创建候选人画像
func (m *MySQL) CreateCandidate(ctx context.Context, candidate *models.Candidate) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.CreateCandidate", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("candidate.id", candidate.CandidateID))

	if err := m.db.WithContext(ctx).Create(candidate).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if isDuplicateKeyError(err) {
			return fmt.Errorf("候选人画像已存在: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("创建候选人失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// UpdateCandidateProfile 更新已有候选人画像
// 注意：联系方式(email/phone)仅在首次创建时写入，重复上传简历不覆盖
func (m *MySQL) UpdateCandidateProfile(ctx context.Context, candidate *models.Candidate) error {
	updates := map[string]interface{}{
		"name":              candidate.Name,
		"skills_json":       candidate.SkillsJSON,
		"total_experience":  candidate.TotalExperience,
		"current_role":      candidate.CurrentRole,
		"companies_json":    candidate.CompaniesJSON,
		"resume_text":       candidate.ResumeText,
		"resume_object_key": candidate.ResumeObjectKey,
	}
	return m.db.WithContext(ctx).Model(&models.Candidate{}).
		Where("candidate_id = ?", candidate.CandidateID).
		Updates(updates).Error
}

// SetCandidateVectorSlot 记录候选人在相似度索引中的槽位号
func (m *MySQL) SetCandidateVectorSlot(ctx context.Context, candidateID string, slot int64) error {
	return m.db.WithContext(ctx).Model(&models.Candidate{}).
		Where("candidate_id = ?", candidateID).
		Update("vector_slot", slot).Error
}

// CreateJob 创建岗位
func (m *MySQL) CreateJob(ctx context.Context, job *models.Job) error {
	return m.db.WithContext(ctx).Create(job).Error
}

// GetJobByID 通过岗位ID获取岗位
func (m *MySQL) GetJobByID(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs 列出全部岗位，按创建时间倒序
func (m *MySQL) ListJobs(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	if err := m.db.WithContext(ctx).Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// CreateApplication 创建投递记录，(岗位,候选人)重复时返回ErrDuplicateKey
func (m *MySQL) CreateApplication(ctx context.Context, app *models.Application) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.CreateApplication", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", app.JobID),
		attribute.String("candidate.id", app.CandidateID),
	)

	if err := m.db.WithContext(ctx).Create(app).Error; err != nil {
		if isDuplicateKeyError(err) {
			span.SetAttributes(attribute.String("error.type", "duplicate_application"))
			span.SetStatus(codes.Ok, "duplicate application")
			return fmt.Errorf("候选人已投递该岗位: %w", ErrDuplicateKey)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("创建投递记录失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// ListApplicationsByJob 列出岗位的全部投递记录
func (m *MySQL) ListApplicationsByJob(ctx context.Context, jobID string) ([]models.Application, error) {
	var apps []models.Application
	if err := m.db.WithContext(ctx).Where("job_id = ?", jobID).Order("applied_at ASC").Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

// ListApplicationsByCandidate 列出候选人的全部投递记录
func (m *MySQL) ListApplicationsByCandidate(ctx context.Context, candidateID string) ([]models.Application, error) {
	var apps []models.Application
	if err := m.db.WithContext(ctx).Where("candidate_id = ?", candidateID).Order("applied_at ASC").Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

// UpsertMatchResult 保存匹配评估结果，同一(岗位,候选人)重复评估时覆盖旧值
func (m *MySQL) UpsertMatchResult(ctx context.Context, result *models.MatchResult) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.UpsertMatchResult", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", result.JobID),
		attribute.String("candidate.id", result.CandidateID),
		attribute.Float64("match.score", result.OverallMatchScore),
	)

	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_id"}, {Name: "candidate_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"skill_match_percentage", "experience_match_percentage", "overall_match_score", "reasoning", "evaluated_at",
		}),
	}).Create(result).Error

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("保存匹配结果失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetMatchResult 获取某(岗位,候选人)的匹配评估结果
func (m *MySQL) GetMatchResult(ctx context.Context, jobID, candidateID string) (*models.MatchResult, error) {
	var result models.MatchResult
	err := m.db.WithContext(ctx).
		Where("job_id = ? AND candidate_id = ?", jobID, candidateID).
		First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateQuiz 追加一套测验题目
func (m *MySQL) CreateQuiz(ctx context.Context, quiz *models.Quiz) error {
	return m.db.WithContext(ctx).Create(quiz).Error
}

// GetLatestQuiz 获取某岗位最新的一套测验，不存在时返回gorm.ErrRecordNotFound
// 重新出题只追加新行，以创建时间最新的一套为准
func (m *MySQL) GetLatestQuiz(ctx context.Context, jobID string) (*models.Quiz, error) {
	var quiz models.Quiz
	err := m.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC, quiz_id DESC").
		First(&quiz).Error
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

// CreateQuizResult 追加一条测验结果
func (m *MySQL) CreateQuizResult(ctx context.Context, result *models.QuizResult) error {
	return m.db.WithContext(ctx).Create(result).Error
}

// GetLatestQuizResult 获取某(岗位,候选人)最新的测验结果
func (m *MySQL) GetLatestQuizResult(ctx context.Context, jobID, candidateID string) (*models.QuizResult, error) {
	var result models.QuizResult
	err := m.db.WithContext(ctx).
		Where("job_id = ? AND candidate_id = ?", jobID, candidateID).
		Order("submitted_at DESC, result_id DESC").
		First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateFinalRanking 追加一条最终排名记录
func (m *MySQL) CreateFinalRanking(ctx context.Context, ranking *models.FinalRanking) error {
	return m.db.WithContext(ctx).Create(ranking).Error
}

// ListLatestFinalRankingsByJob 列出岗位的最终排名
// 同一候选人可能有多条追加记录，只取每人最新的一条。
// 返回顺序为记录插入顺序，排序交由调用方的排名逻辑完成
func (m *MySQL) ListLatestFinalRankingsByJob(ctx context.Context, jobID string) ([]models.FinalRanking, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.ListLatestFinalRankingsByJob", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	var rankings []models.FinalRanking
	// 子查询取每个候选人最新一条记录的ID
	subQuery := m.db.Model(&models.FinalRanking{}).
		Select("MAX(ranking_id)").
		Where("job_id = ?", jobID).
		Group("candidate_id")
	err := m.db.WithContext(ctx).
		Where("ranking_id IN (?)", subQuery).
		Order("ranking_id ASC").
		Find(&rankings).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("查询岗位排名失败: %w", err)
	}
	span.SetAttributes(attribute.Int("ranking.count", len(rankings)))
	span.SetStatus(codes.Ok, "")
	return rankings, nil
}
