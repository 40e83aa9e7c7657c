package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"anoa.com/drawsocial/internal/agent"
	"anoa.com/drawsocial/internal/config"
	"anoa.com/drawsocial/internal/metrics"
	"anoa.com/drawsocial/internal/middleware"
	"anoa.com/drawsocial/pkg/docstore"
	"anoa.com/drawsocial/pkg/storage"

	awardHttp "anoa.com/drawsocial/internal/modules/award/delivery/http"
	awardRepo "anoa.com/drawsocial/internal/modules/award/repository"
	awardService "anoa.com/drawsocial/internal/modules/award/service"

	friendshipHttp "anoa.com/drawsocial/internal/modules/friendship/delivery/http"
	friendshipRepo "anoa.com/drawsocial/internal/modules/friendship/repository"
	friendshipService "anoa.com/drawsocial/internal/modules/friendship/service"

	leaderboardHttp "anoa.com/drawsocial/internal/modules/leaderboard/delivery/http"
	leaderboardService "anoa.com/drawsocial/internal/modules/leaderboard/service"

	notiHttp "anoa.com/drawsocial/internal/modules/notification/delivery/http"
	notifRepo "anoa.com/drawsocial/internal/modules/notification/repository"
	notifService "anoa.com/drawsocial/internal/modules/notification/service"

	profileHttp "anoa.com/drawsocial/internal/modules/profile/delivery/http"
	profileRepo "anoa.com/drawsocial/internal/modules/profile/repository"
	profileService "anoa.com/drawsocial/internal/modules/profile/service"

	searchHttp "anoa.com/drawsocial/internal/modules/search/delivery/http"
	"anoa.com/drawsocial/internal/modules/search/index"
	searchService "anoa.com/drawsocial/internal/modules/search/service"

	sessionHttp "anoa.com/drawsocial/internal/modules/session/delivery/http"
	sessionService "anoa.com/drawsocial/internal/modules/session/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps is the infrastructure the server is built on. Redis and Avatars may
// be nil.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Store    docstore.Store
	Index    index.UserIndex
	Avatars  storage.AvatarResolver
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

type Server struct {
	engine    *gin.Engine
	logger    *slog.Logger
	users     profileRepo.UserRepository
	search    searchService.SearchService
	notifSvc  notifService.NotificationService
	scheduler *agent.Scheduler
	limiters  []*middleware.RateLimiter
}

func NewServer(deps Deps) (*Server, error) {
	cfg := deps.Config
	logger := deps.Logger
	recorder := metrics.NewCollector(deps.Registry)

	var publisher notifService.Publisher
	if deps.Redis != nil {
		publisher = deps.Redis
	}
	notificationRepository := notifRepo.NewNotificationRepository(deps.DB)
	notificationSvc := notifService.NewNotificationService(notificationRepository, publisher, logger)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
	}
	notificationHandler := notiHttp.NewNotificationHandler(notificationSvc, deps.Redis, upgrader, logger)

	awardSvc := awardService.NewAwardService(awardRepo.NewAwardRepository(deps.Store), notificationSvc, recorder, logger)
	awardHandler := awardHttp.NewAwardHandler(awardSvc)

	userRepo := profileRepo.NewUserRepository(deps.DB)
	profileSvc := profileService.NewProfileService(userRepo, awardSvc, deps.Avatars, cfg.HydrateConcurrency, recorder, logger)
	profileHandler := profileHttp.NewProfileHandler(profileSvc)

	friendshipSvc := friendshipService.NewFriendshipService(friendshipRepo.NewFriendshipRepository(deps.Store), profileSvc, notificationSvc, recorder, logger)
	friendshipHandler := friendshipHttp.NewFriendshipHandler(friendshipSvc, profileSvc)

	leaderboardSvc := leaderboardService.NewLeaderboardService(friendshipSvc, profileSvc)
	leaderboardHandler := leaderboardHttp.NewLeaderboardHandler(leaderboardSvc)

	searchSvc := searchService.NewSearchService(deps.Index, userRepo, friendshipSvc, deps.Avatars, cfg.SearchLimit, cfg.HydrateConcurrency, logger)
	searchHandler := searchHttp.NewSearchHandler(searchSvc, friendshipSvc)

	newSession := func(uid string) *sessionService.Coordinator {
		return sessionService.NewCoordinator(uid, sessionService.Deps{
			Awards:       awardSvc,
			Friendships:  friendshipSvc,
			Profiles:     profileSvc,
			Search:       searchSvc,
			Leaderboards: leaderboardSvc,
			Sink:         notificationSvc.SinkFor(uid),
			Metrics:      recorder,
			Logger:       logger,
		}, sessionService.Options{
			Debounce:    cfg.SearchDebounce,
			SearchLimit: cfg.SearchLimit,
		})
	}
	sessionHandler := sessionHttp.NewSessionHandler(newSession, upgrader, 10*time.Second, logger)

	scheduler := agent.NewScheduler(logger, 10*time.Minute)
	if err := scheduler.RegisterAgent(searchService.NewReindexAgent(searchSvc, cfg.ReindexSchedule)); err != nil {
		return nil, err
	}

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger, "/healthz", "/metrics"))

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(metrics.Handler(deps.Registry)))

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	general := middleware.NewRateLimiter("general", cfg.RateLimitPerMinute, cfg.RateLimitBurst, 0)
	mutations := middleware.NewRateLimiter("mutation", cfg.MutationRateLimitPerMinute, cfg.RateLimitBurst, 0)
	limitMutations := mutations.Middleware()

	api := router.Group("/api")
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth(), general.Middleware())
	{
		// Award routes
		protected.POST("/awards", limitMutations, awardHandler.GiveMedal)
		protected.GET("/awards/today", awardHandler.TodayUsage)
		protected.GET("/awards/:uid/counts", awardHandler.GetCounts)

		// Profile routes
		protected.GET("/profile/me", profileHandler.GetCurrentProfile)
		protected.GET("/users/search", searchHandler.SearchUsers)
		protected.GET("/users/:uid", profileHandler.GetProfile)

		// Friend routes
		protected.POST("/friends/requests", limitMutations, friendshipHandler.SendRequest)
		protected.GET("/friends/requests", friendshipHandler.ListIncoming)
		protected.POST("/friends/requests/:uid/accept", limitMutations, friendshipHandler.Accept)
		protected.DELETE("/friends/requests/:uid", limitMutations, friendshipHandler.Decline)
		protected.GET("/friends/requests/:uid/pending", friendshipHandler.HasPending)
		protected.GET("/friends", friendshipHandler.ListFriends)
		protected.DELETE("/friends/:uid", limitMutations, friendshipHandler.RemoveFriend)
		protected.GET("/friends/:uid/state", friendshipHandler.GetState)

		protected.GET("/leaderboard", leaderboardHandler.GetLeaderboard)

		// Live session
		protected.GET("/session/ws", sessionHandler.HandleWebSocket)

		// Notification routes
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.GET("/notifications/ws", notificationHandler.HandleWebSocket)
	}

	return &Server{
		engine:    router,
		logger:    logger,
		users:     userRepo,
		search:    searchSvc,
		notifSvc:  notificationSvc,
		scheduler: scheduler,
		limiters:  []*middleware.RateLimiter{general, mutations},
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Users() profileRepo.UserRepository {
	return s.users
}

func (s *Server) Search() searchService.SearchService {
	return s.search
}

// StartBackground starts the scheduler and kicks off one reindex.
func (s *Server) StartBackground(ctx context.Context) {
	s.scheduler.Start()
	go func() {
		if err := s.scheduler.RunAgentByName(ctx, "search-reindex"); err != nil {
			s.logger.Warn("initial reindex failed", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown stops background work after the HTTP server has drained.
func (s *Server) Shutdown(ctx context.Context) {
	s.scheduler.Stop(ctx)
	for _, l := range s.limiters {
		l.Stop()
	}
	s.notifSvc.Close()
}

func setupCORS(router *gin.Engine, origins []string) {
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
