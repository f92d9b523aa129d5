package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linemk/farmsync/internal/app/handlers"
	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/farmsync/internal/lib/logger/handlers/urllog"
)

// Router собирает маршруты API
func (a *App) Router() http.Handler {
	log := a.Logger

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)

	auth := jwtmiddleware.NewJWTMiddleware()
	farmerOnly := jwtmiddleware.RequireRole(models.RoleFarmer)
	farmerOrAdmin := jwtmiddleware.RequireRole(models.RoleFarmer, models.RoleAdmin)

	router.Route("/api", func(r chi.Router) {
		r.Get("/", handlers.WelcomeHandler(log))

		r.Post("/auth/register", handlers.RegisterHandler(log, a.Auth))
		r.Post("/auth/login", handlers.AuthHandler(log, a.Auth))
		r.With(auth).Get("/users/me", handlers.MeHandler(log, a.Auth))

		r.Route("/crops", func(r chi.Router) {
			r.Get("/", handlers.ListCropsHandler(log, a.Crops))
			r.Get("/marketplace", handlers.MarketplaceCropsHandler(log, a.Crops))
			r.Get("/farmer/{farmerId}", handlers.FarmerCropsHandler(log, a.Crops))
			r.Get("/{id}", handlers.GetCropHandler(log, a.Crops))

			r.With(auth, farmerOnly).Post("/", handlers.CreateCropHandler(log, a.Crops))
			r.With(auth, farmerOrAdmin).Put("/{id}", handlers.UpdateCropHandler(log, a.Crops))
			r.With(auth, farmerOrAdmin).Delete("/{id}", handlers.DeleteCropHandler(log, a.Crops))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(auth)
			r.Post("/", handlers.CreateOrderHandler(log, a.Orders))
			r.Get("/myorders", handlers.MyOrdersHandler(log, a.Orders))
			r.With(farmerOnly).Get("/farmer", handlers.FarmerOrdersHandler(log, a.Orders))
			r.Get("/{id}", handlers.GetOrderHandler(log, a.Orders))
			r.With(farmerOrAdmin).Put("/{id}/status", handlers.UpdateOrderStatusHandler(log, a.Orders))
			r.Put("/{id}/cancel", handlers.CancelOrderHandler(log, a.Orders))
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/", handlers.ListReviewsHandler(log, a.Reviews))
			r.Get("/stats/{farmerId}", handlers.FarmerRatingStatsHandler(log, a.Reviews))
			r.Get("/{id}", handlers.GetReviewHandler(log, a.Reviews))

			r.With(auth).Post("/", handlers.CreateReviewHandler(log, a.Reviews))
			r.With(auth).Put("/{id}", handlers.UpdateReviewHandler(log, a.Reviews))
			r.With(auth).Delete("/{id}", handlers.DeleteReviewHandler(log, a.Reviews))
		})

		r.Route("/dashboard/farmer", func(r chi.Router) {
			r.Use(auth, farmerOnly)
			r.Get("/", handlers.FarmerDashboardHandler(log, a.Dashboard))
			r.Get("/monthly-sales", handlers.MonthlySalesHandler(log, a.Dashboard))
			r.Get("/sales-by-crop", handlers.SalesByCropHandler(log, a.Dashboard))
			r.Get("/revenue-by-customer", handlers.RevenueByCustomerHandler(log, a.Dashboard))
			r.Get("/export", handlers.ExportSalesHandler(log, a.Dashboard))
		})
	})

	return router
}
