package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"hiregenius-go/internal/api/handler"
	"hiregenius-go/internal/api/middleware"
	"hiregenius-go/internal/api/router"
	"hiregenius-go/internal/config"
	appLogger "hiregenius-go/internal/logger"
	"hiregenius-go/internal/notify"
	"hiregenius-go/internal/parser"
	"hiregenius-go/internal/processor"
	"hiregenius-go/internal/ratelimit"
	"hiregenius-go/internal/storage"
	"hiregenius-go/internal/tracing"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}
	initLogger(cfg)
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 链路追踪
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		glog.Fatalf("初始化链路追踪失败: %v", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := shutdownTracing(shutdownCtx); err != nil {
			glog.Warnf("关闭链路追踪失败: %v", err)
		}
	}()

	// 存储层
	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	if storageManager.MySQL == nil {
		glog.Fatalf("MySQL未初始化，服务无法启动")
	}
	if storageManager.VectorIndex == nil {
		glog.Fatalf("向量索引未初始化，服务无法启动")
	}
	glog.Info("存储服务初始化成功")

	// 简历文本提取器
	textExtractor, err := parser.NewEinoResumeTextExtractor(ctx)
	if err != nil {
		glog.Fatalf("初始化简历文本提取器失败: %v", err)
	}

	// 各任务专用的LLM客户端
	profileModel, err := parser.NewGroqChatModel(
		cfg.Groq.APIKey,
		cfg.GetModelForTask("profile_extraction"),
		cfg.Groq.APIURL,
		parser.WithTemperature(cfg.ProfileExtractor.Temperature),
		parser.WithMaxTokens(cfg.ProfileExtractor.MaxTokens),
		parser.WithJSONMode(true),
	)
	if err != nil {
		glog.Fatalf("初始化画像提取模型失败: %v", err)
	}
	matchModel, err := parser.NewGroqChatModel(
		cfg.Groq.APIKey,
		cfg.GetModelForTask("match_evaluation"),
		cfg.Groq.APIURL,
		parser.WithTemperature(cfg.MatchEvaluator.Temperature),
		parser.WithMaxTokens(cfg.MatchEvaluator.MaxTokens),
		parser.WithJSONMode(true),
	)
	if err != nil {
		glog.Fatalf("初始化匹配评估模型失败: %v", err)
	}
	quizModel, err := parser.NewGroqChatModel(
		cfg.Groq.APIKey,
		cfg.GetModelForTask("quiz_generation"),
		cfg.Groq.APIURL,
		parser.WithTemperature(cfg.QuizGenerator.Temperature),
		parser.WithMaxTokens(cfg.QuizGenerator.MaxTokens),
	)
	if err != nil {
		glog.Fatalf("初始化出题模型失败: %v", err)
	}
	glog.Info("LLM客户端初始化成功")

	// 免费额度有QPM限制，所有LLM调用都走限流代理
	limitedProfileModel := ratelimit.ForModel(profileModel, cfg.GetModelForTask("profile_extraction"), cfg.Groq.RateLimits, cfg.Groq.DefaultQPM)
	limitedMatchModel := ratelimit.ForModel(matchModel, cfg.GetModelForTask("match_evaluation"), cfg.Groq.RateLimits, cfg.Groq.DefaultQPM)
	limitedQuizModel := ratelimit.ForModel(quizModel, cfg.GetModelForTask("quiz_generation"), cfg.Groq.RateLimits, cfg.Groq.DefaultQPM)

	// Embedder，密钥缺省复用Groq的
	embeddingAPIKey := cfg.Groq.Embedding.APIKey
	if embeddingAPIKey == "" {
		embeddingAPIKey = cfg.Groq.APIKey
	}
	embedder, err := parser.NewOpenAIEmbedder(embeddingAPIKey, cfg.Groq.Embedding)
	if err != nil {
		glog.Fatalf("初始化Embedder失败: %v", err)
	}

	// 装配筛选服务
	opts := []processor.ComponentOpt{
		processor.WithStore(storageManager.MySQL),
		processor.WithVectorIndex(storageManager.VectorIndex),
		processor.WithTextExtractor(textExtractor),
		processor.WithProfileExtractor(parser.NewLLMProfileExtractor(limitedProfileModel)),
		processor.WithMatchEvaluator(parser.NewLLMMatchEvaluator(limitedMatchModel)),
		processor.WithQuizGenerator(parser.NewLLMQuizGenerator(limitedQuizModel)),
		processor.WithEmbedder(embedder),
		processor.WithNotifier(notify.NewEmailNotifier(cfg.Notifier)),
	}
	if storageManager.MinIO != nil {
		opts = append(opts, processor.WithFileStore(storageManager.MinIO))
	}
	if storageManager.Redis != nil {
		opts = append(opts, processor.WithCache(storageManager.Redis))
	}
	screeningService, err := processor.NewScreeningService(cfg, opts...)
	if err != nil {
		glog.Fatalf("装配筛选服务失败: %v", err)
	}
	glog.Info("筛选服务初始化成功")

	// HTTP服务器
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		// 把全局日志器注入请求上下文，业务侧统一走logger.Ctx
		c = appLogger.WithContext(c)
		ctx.Next(c)
		glog.CtxInfof(c, "%s %s -> %d", string(ctx.Method()), string(ctx.Path()), ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, handler.NewScreeningHandler(screeningService), middleware.Auth(storageManager.MySQL))
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

// initLogger 初始化zerolog并桥接到Hertz的日志接口
func initLogger(cfg *config.Config) {
	appLogger.Init(appLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	appLogger.Logger = appLogger.Logger.With().Str("app", "hiregenius").Logger()

	// 上下文中没有注入日志器时回退到全局实例
	zerolog.DefaultContextLogger = &appLogger.Logger

	glog.SetLogger(hertzadapter.From(appLogger.Logger))
}
