package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	config "github.com/phillip/volunteer-listings-go/config"
	controllers "github.com/phillip/volunteer-listings-go/controllers"
	middleware "github.com/phillip/volunteer-listings-go/middleware"
	utils "github.com/phillip/volunteer-listings-go/utils"
)

// Deps are the wired services the route table needs. Images and Redis may
// be nil.
type Deps struct {
	Listings      controllers.ListingService
	Auth          controllers.AuthService
	Authenticator middleware.Authenticator
	Images        utils.ImageStore
	Redis         *redis.Client
	Health        map[string]controllers.HealthCheck
}

func SetupRoutes(r *gin.Engine, cfg *config.Config, d Deps) {
	r.Use(middleware.RequestLogger())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(middleware.RateLimit(cfg.RateLimit, d.Redis))

	r.GET("/health", controllers.Health(d.Health))

	// public
	r.POST("/auth/register", controllers.Register(d.Auth))
	r.POST("/auth/login", controllers.Login(d.Auth))

	// protected
	auth := middleware.AuthMiddleware(d.Authenticator)

	listings := r.Group("/listings")
	{
		listings.GET("", controllers.ListListings(d.Listings))
		listings.POST("", auth, controllers.CreateListing(d.Listings, d.Images))
		listings.GET("/new", auth, controllers.NewListingForm())

		listings.GET("/search", controllers.SearchListings(d.Listings))
		listings.GET("/skill", controllers.SkillListings(d.Listings))
		listings.GET("/find", controllers.FindListings(d.Listings))
		listings.POST("/find", controllers.FindListingsForm())

		listings.GET("/:id", controllers.GetListing(d.Listings))
		listings.PUT("/:id", auth, controllers.UpdateListing(d.Listings, d.Images))
		listings.DELETE("/:id", auth, controllers.DeleteListing(d.Listings))

		listings.GET("/:id/share", auth, controllers.ShareForm(d.Listings))
		listings.POST("/:id/share", auth, controllers.ShareListing(d.Listings))
		listings.POST("/:id/participate", auth, controllers.Participate(d.Listings))
		listings.GET("/:id/:v_id", auth, controllers.GetVolunteer(d.Listings))
	}
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "If-None-Match", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"ETag", "Last-Modified", "Retry-After", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cc
}
