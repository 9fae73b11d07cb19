package cmd

import (
	"context"
	"time"

	"github.com/Laisky/disaster-alert/internal/library/classifier"
	"github.com/Laisky/disaster-alert/internal/library/weather"
	"github.com/Laisky/disaster-alert/internal/metrics"
	"github.com/Laisky/disaster-alert/internal/notify"
	"github.com/Laisky/disaster-alert/internal/web"
	alertCtl "github.com/Laisky/disaster-alert/internal/web/alert/controller"
	alertDao "github.com/Laisky/disaster-alert/internal/web/alert/dao"
	alertSvc "github.com/Laisky/disaster-alert/internal/web/alert/service"
	analyticsCtl "github.com/Laisky/disaster-alert/internal/web/analytics/controller"
	analyticsDao "github.com/Laisky/disaster-alert/internal/web/analytics/dao"
	analyticsSvc "github.com/Laisky/disaster-alert/internal/web/analytics/service"
	emergencyCtl "github.com/Laisky/disaster-alert/internal/web/emergency/controller"
	emergencyDao "github.com/Laisky/disaster-alert/internal/web/emergency/dao"
	"github.com/Laisky/disaster-alert/internal/web/middleware"
	userCtl "github.com/Laisky/disaster-alert/internal/web/user/controller"
	userDao "github.com/Laisky/disaster-alert/internal/web/user/dao"
	userSvc "github.com/Laisky/disaster-alert/internal/web/user/service"
	weatherCtl "github.com/Laisky/disaster-alert/internal/web/weather/controller"
	"github.com/Laisky/disaster-alert/library/db/mongo"
	"github.com/Laisky/disaster-alert/library/db/redis"
	"github.com/Laisky/disaster-alert/library/jwt"
	"github.com/Laisky/disaster-alert/library/log"
	"github.com/Laisky/disaster-alert/library/mail"
	"github.com/Laisky/disaster-alert/library/storage"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/jonboulle/clockwork"
	redisLib "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const (
	defaultRequestTimeout = 30 * time.Second
	memoryQueueSize       = 1024

	defaultUploadPerMinute = 10
	defaultUploadBurst     = 5
)

var apiCMD = &cobra.Command{
	Use:   "api",
	Short: "api",
	Long:  `http API service for disaster alerts`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
		if err := validateStartupConfig(); err != nil {
			log.Logger.Panic("validate config", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		handlers, err := setupHandlers(ctx)
		if err != nil {
			log.Logger.Panic("setup handlers", zap.Error(err))
		}

		web.RunServer(gconfig.Shared.GetString("listen"), handlers)
	},
}

// intSetting returns def only when key is absent, so 0 can disable a feature.
func intSetting(key string, def int) int {
	if gconfig.Shared.Get(key) == nil {
		return def
	}

	return gconfig.Shared.GetInt(key)
}

func dialMongo(ctx context.Context) (mongo.DB, error) {
	db, err := mongo.NewDB(ctx, mongo.DialInfo{
		Addr:   gconfig.Shared.GetString("settings.db.mongo.addr"),
		DBName: gconfig.Shared.GetString("settings.db.mongo.db"),
		User:   gconfig.Shared.GetString("settings.db.mongo.user"),
		Pwd:    gconfig.Shared.GetString("settings.db.mongo.pwd"),
		AuthDB: gconfig.Shared.GetString("settings.db.mongo.auth_db"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}

	return db, nil
}

// setupQueue prefers redis so queued notifications survive restarts.
func setupQueue(ctx context.Context, clock clockwork.Clock) (notify.Queue, error) {
	addr := gconfig.Shared.GetString("settings.db.redis.addr")
	if addr == "" {
		log.Logger.Info("redis not configured, notifications queue in memory")
		return notify.NewMemoryQueue(memoryQueueSize), nil
	}

	rdb := redis.NewDB(&redisLib.Options{
		Addr:     addr,
		Password: gconfig.Shared.GetString("settings.db.redis.pwd"),
		DB:       gconfig.Shared.GetInt("settings.db.redis.db"),
	}, redis.WithClock(clock))
	if err := rdb.Ping(ctx); err != nil {
		return nil, errors.Wrap(err, "connect redis")
	}

	return notify.NewRedisQueue(rdb), nil
}

func setupHandlers(ctx context.Context) (*web.Handlers, error) {
	db, err := dialMongo(ctx)
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	m := metrics.Shared()
	timeout := gconfig.Shared.GetDuration("settings.web.timeout")
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	signer, err := jwt.NewSigner([]byte(gconfig.Shared.GetString("settings.secret")))
	if err != nil {
		return nil, errors.Wrap(err, "new jwt signer")
	}

	uploader, err := storage.New(storage.Config{
		Endpoint:  gconfig.Shared.GetString("settings.s3.endpoint"),
		AccessKey: gconfig.Shared.GetString("settings.s3.access_key"),
		SecretKey: gconfig.Shared.GetString("settings.s3.secret_key"),
		Bucket:    gconfig.Shared.GetString("settings.s3.bucket"),
		UseSSL:    gconfig.Shared.GetBool("settings.s3.use_ssl"),
		PublicURL: gconfig.Shared.GetString("settings.s3.public_url"),
		Prefix:    gconfig.Shared.GetString("settings.s3.prefix"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "new uploader")
	}

	cls, err := classifier.New(classifier.Config{
		APIBase: gconfig.Shared.GetString("settings.classifier.api_base"),
		APIKey:  gconfig.Shared.GetString("settings.classifier.api_key"),
		Model:   gconfig.Shared.GetString("settings.classifier.model"),
		Timeout: gconfig.Shared.GetDuration("settings.classifier.timeout"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "new classifier")
	}

	sender, err := mail.NewSMTPSender(mail.Config{
		Host: gconfig.Shared.GetString("settings.mail.host"),
		Port: gconfig.Shared.GetInt("settings.mail.port"),
		User: gconfig.Shared.GetString("settings.mail.user"),
		Pwd:  gconfig.Shared.GetString("settings.mail.pwd"),
		From: gconfig.Shared.GetString("settings.mail.from"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "new smtp sender")
	}

	queue, err := setupQueue(ctx, clock)
	if err != nil {
		return nil, err
	}

	users := userDao.NewUsers(db)
	dispatcher := notify.NewDispatcher(queue, users, sender,
		notify.WithAppURL(gconfig.Shared.GetString("settings.web.app_url")),
		notify.WithWorkers(gconfig.Shared.GetInt("settings.notify.workers")),
		notify.WithMetrics(m),
	)
	go func() {
		if err := dispatcher.Run(ctx); err != nil {
			log.Logger.Error("notification dispatcher exit", zap.Error(err))
		}
	}()
	go dispatcher.LogErrors(ctx)

	weatherCli, err := weather.NewClient(
		gconfig.Shared.GetString("settings.weather.api_base"),
		gconfig.Shared.GetString("settings.weather.api_key"),
		gconfig.Shared.GetDuration("settings.weather.timeout"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "new weather client")
	}

	userService := userSvc.New(users, signer, userSvc.WithClock(clock))
	alertService := alertSvc.New(alertDao.NewAlerts(db), cls, uploader, dispatcher,
		alertSvc.WithClock(clock),
		alertSvc.WithMetrics(m),
	)
	analyticsService := analyticsSvc.New(analyticsDao.NewAnalytics(db), clock)

	return &web.Handlers{
		Auth: userService,
		UploadLimit: middleware.NewRateLimiter(
			intSetting("settings.web.upload_per_minute", defaultUploadPerMinute),
			intSetting("settings.web.upload_burst", defaultUploadBurst),
			clock,
		),
		Users:     userCtl.New(userService, timeout),
		Alerts:    alertCtl.New(alertService, timeout),
		Analytics: analyticsCtl.New(analyticsService, timeout),
		Emergency: emergencyCtl.New(emergencyDao.NewEmergency(db), clock, timeout),
		Weather:   weatherCtl.New(weatherCli, timeout),
	}, nil
}

func init() {
	rootCMD.AddCommand(apiCMD)
}
