package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/linemk/farmsync/internal/config"
	"github.com/linemk/farmsync/internal/service"
	"github.com/linemk/farmsync/internal/storage"
)

const pingTimeout = 5 * time.Second

type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *sql.DB

	Auth      *service.AuthService
	Crops     service.CropService
	Orders    service.OrderService
	Reviews   service.ReviewService
	Dashboard service.DashboardService
}

// NewApp подключается к БД и собирает приложение
func NewApp(log *slog.Logger, cfg *config.Config) (*App, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(log, cfg, db), nil
}

// New связывает репозитории и сервисы поверх готового подключения
func New(log *slog.Logger, cfg *config.Config, db *sql.DB) *App {
	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(db)
	cropRepo := storage.NewCropRepository(db)
	orderRepo := storage.NewOrderRepository(db)
	reviewRepo := storage.NewReviewRepository(db)

	return &App{
		Config:    cfg,
		Logger:    log,
		DB:        db,
		Auth:      service.NewAuthService(log, userRepo, cfg.JWT.TTL()),
		Crops:     service.NewCropService(log, db, cropRepo, userRepo),
		Orders:    service.NewOrderService(log, db, cropRepo, orderRepo),
		Reviews:   service.NewReviewService(log, db, reviewRepo, orderRepo, userRepo),
		Dashboard: service.NewDashboardService(log, orderRepo, reviewRepo, nil),
	}
}
