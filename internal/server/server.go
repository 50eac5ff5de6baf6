package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/quizarena/internal/api"
	"github.com/victornm/quizarena/internal/broadcast"
	"github.com/victornm/quizarena/internal/character"
	"github.com/victornm/quizarena/internal/event"
	"github.com/victornm/quizarena/internal/game"
	"github.com/victornm/quizarena/internal/leaderboard"
	"github.com/victornm/quizarena/internal/lobby"
	"github.com/victornm/quizarena/internal/perk"
	"github.com/victornm/quizarena/internal/question"
	"github.com/victornm/quizarena/internal/score"
	"github.com/victornm/quizarena/internal/session"
	"github.com/victornm/quizarena/internal/telemetry"
	"github.com/victornm/quizarena/internal/user"
)

type Postgres struct {
	Addr string
	User string
	Pass string
	Name string
}

type Redis struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type Config struct {
	HTTP struct {
		Port int32
		// AllowedOrigins of websocket clients. Empty means same origin only.
		AllowedOrigins []string
	}

	GRPC struct {
		Port int32
	}

	Log telemetry.LogConfig

	Redis struct {
		Leaderboard Redis
		Pubsub      Redis
	}

	Postgres struct {
		Game  Postgres
		Score Postgres
	}

	Game struct {
		QuestionSeconds      int
		QuestionCount        int
		DefaultQuestionSetID int64
		QuestionBreak        time.Duration
	}

	// Perks of each character, keyed by character name.
	Perks map[string][]perk.Perk
}

func (c *Config) Validate() error {
	switch {
	case c.HTTP.Port <= 0:
		return errors.New("http.port must be positive")
	case c.GRPC.Port <= 0:
		return errors.New("grpc.port must be positive")
	case c.Game.QuestionSeconds < 0:
		return errors.New("game.questionSeconds must not be negative")
	case c.Game.QuestionCount < 0:
		return errors.New("game.questionCount must not be negative")
	case c.Game.QuestionBreak < 0:
		return errors.New("game.questionBreak must not be negative")
	}

	return nil
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres struct {
			game  *pgxpool.Pool
			score *pgxpool.Pool
		}
	}

	service struct {
		lobby       *lobby.Service
		question    *question.Service
		session     *session.Service
		user        *user.Service
		character   *character.Service
		score       *score.Service
		perk        *perk.Engine
		broadcast   *broadcast.Publisher
		leaderboard *leaderboard.Service
		game        *game.Coordinator
	}

	health *health.Server
	http   *http.Server
	grpc   *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(c Redis) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    c.Addrs,
			Password: c.Pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	connect := func(c Postgres) (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name))
		if err != nil {
			return nil, err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			return nil, err
		}

		return db, nil
	}

	s.infra.postgres.game, err = connect(s.c.Postgres.Game)
	if err != nil {
		return fmt.Errorf("game: %w", err)
	}

	s.infra.postgres.score, err = connect(s.c.Postgres.Score)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}

	return nil
}

func (s *Server) initService() (err error) {
	s.service.lobby = lobby.NewService(lobby.Config{DB: s.infra.postgres.game})
	s.service.question = question.NewService(question.Config{DB: s.infra.postgres.game})
	s.service.session = session.NewService(session.Config{DB: s.infra.postgres.game})
	s.service.user = user.NewService(user.Config{DB: s.infra.postgres.game})
	s.service.character = character.NewService(character.Config{DB: s.infra.postgres.game})

	s.service.score = score.NewService(score.Config{
		DB:         s.infra.postgres.score,
		Experience: s.service.character,
	})

	s.service.perk, err = perk.NewEngine(perk.Config{Perks: s.c.Perks})
	if err != nil {
		return err
	}

	s.service.broadcast = broadcast.NewPublisher(broadcast.Config{
		Redis:  s.infra.redis.pubsub,
		Prefix: s.c.Redis.Pubsub.Prefix,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})

	registry := game.NewRegistry()
	s.service.game = game.NewCoordinator(game.Config{
		Registry:             registry,
		EventBus:             s.eb,
		Lobby:                s.service.lobby,
		Questions:            s.service.question,
		Sessions:             s.service.session,
		Results:              s.service.score,
		Users:                s.service.user,
		Modifiers:            s.service.perk,
		Broadcaster:          s.service.broadcast,
		Metrics:              telemetry.NewGameMetrics(prometheus.DefaultRegisterer, registry.Len),
		QuestionSeconds:      s.c.Game.QuestionSeconds,
		QuestionCount:        s.c.Game.QuestionCount,
		DefaultQuestionSetID: s.c.Game.DefaultQuestionSetID,
		QuestionBreak:        s.c.Game.QuestionBreak,
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		HTTP:        e,
		Game:        s.service.game,
		Sessions:    s.service.session,
		Results:     s.service.score,
		Leaderboard: s.service.leaderboard,
		Characters:  s.service.character,
		Rooms:       s.service.broadcast,
		CheckOrigin: checkOrigin(s.c.HTTP.AllowedOrigins),
	})

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// checkOrigin accepts the listed websocket origins, or same origin when none is listed.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}

	return func(r *http.Request) bool {
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.health.Shutdown()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}
	s.grpc.GracefulStop()

	// Games still running are ended so their results are kept.
	s.service.game.Shutdown(ctx)
	s.eb.Stop()

	s.infra.postgres.game.Close()
	s.infra.postgres.score.Close()
	if err := s.infra.redis.leaderboard.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis failed", "error", err)
	}
	if err := s.infra.redis.pubsub.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis failed", "error", err)
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
