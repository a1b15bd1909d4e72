package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// JobModulePrefix 岗位模块
	JobModulePrefix = "job"
	// QuizModulePrefix 测验模块
	QuizModulePrefix = "quiz"
	// NotifyModulePrefix 通知模块
	NotifyModulePrefix = "notify"

	// EntityText 文本实体
	EntityText = "text"
	// EntityLatest 最新记录实体
	EntityLatest = "latest"
	// EntityFailureCount 失败计数实体
	EntityFailureCount = "failure_count"

	// KeyJobDescriptionText JD文本缓存 (STRING)
	// 格式: app:job:text:{jobID}
	KeyJobDescriptionText = AppPrefix + ":" + JobModulePrefix + ":" + EntityText + ":%s"

	// KeyLatestQuiz 最新测验缓存 (STRING, JSON序列化的题目列表)
	// 格式: app:quiz:latest:{jobID}
	KeyLatestQuiz = AppPrefix + ":" + QuizModulePrefix + ":" + EntityLatest + ":%s"

	// KeyNotifyFailureCount 通知发送失败计数器 (STRING, INCR)
	// 格式: app:notify:failure_count
	KeyNotifyFailureCount = AppPrefix + ":" + NotifyModulePrefix + ":" + EntityFailureCount
)
