package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"

	config "github.com/phillip/volunteer-listings-go/config"
	controllers "github.com/phillip/volunteer-listings-go/controllers"
	geo "github.com/phillip/volunteer-listings-go/geo"
	mailer "github.com/phillip/volunteer-listings-go/mailer"
	routes "github.com/phillip/volunteer-listings-go/routes"
	scheduler "github.com/phillip/volunteer-listings-go/scheduler"
	services "github.com/phillip/volunteer-listings-go/services"
	store "github.com/phillip/volunteer-listings-go/store"
	utils "github.com/phillip/volunteer-listings-go/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	client, err := config.ConnectMongo(ctx, cfg)
	if err != nil {
		log.Fatalf("mongo: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}()
	db := client.Database(cfg.DBName)
	if err := config.EnsureIndexes(ctx, db); err != nil {
		log.Fatalf("mongo indexes: %v", err)
	}
	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	// --- Providers ---
	maps, err := geo.NewGoogleClient(cfg.MapAPIKey, "")
	if err != nil {
		log.Fatalf("maps: %v", err)
	}
	geocoder := geo.NewCachedGeocoder(geo.NewGoogleGeocoder(maps), rdb, cfg.GeocodeCacheTTL)
	notifier := mailer.NewZepto(mailer.ZeptoConfig{
		APIURL: cfg.Mail.APIURL,
		APIKey: cfg.Mail.APIKey,
		From:   cfg.Mail.From,
		ToName: cfg.Mail.ToName,
	})

	var images utils.ImageStore
	if cc := cfg.Cloudinary; cc.CloudName != "" {
		cld, err := utils.NewCloudinary(cc.CloudName, cc.APIKey, cc.APISecret, cc.Folder)
		if err != nil {
			log.Fatalf("cloudinary: %v", err)
		}
		images = cld
	} else {
		log.Println("cloudinary not configured, image uploads disabled")
	}

	// --- Reminders ---
	var jobs scheduler.JobStore
	if cfg.Reminder.Persist {
		jobs = scheduler.NewMongoStore(db)
	}
	sched := scheduler.New(scheduler.RealClock(), jobs)
	defer sched.Stop()

	users := store.NewUsers(db)
	listingSvc := services.NewListingService(services.Deps{
		Listings:     store.NewListings(db),
		Users:        users,
		Geocoder:     geocoder,
		Distances:    geo.NewGoogleDistanceOracle(maps),
		Notifier:     notifier,
		Scheduler:    sched,
		Images:       images,
		Location:     cfg.Location,
		ReminderLead: cfg.Reminder.Lead,
	})
	sched.Handle(services.ReminderKind, listingSvc.SendReminder)

	if n, err := sched.Restore(ctx); err != nil {
		log.Printf("scheduler: restore: %v", err)
	} else if n > 0 {
		log.Printf("scheduler: restored %d pending reminders", n)
	}
	if jobs != nil {
		janitor, err := scheduler.NewJanitor(jobs, cfg.Reminder.JanitorSchedule, cfg.Reminder.Retention, scheduler.RealClock())
		if err != nil {
			log.Fatalf("janitor: %v", err)
		}
		janitor.Start()
		defer janitor.Stop()
	}

	// --- HTTP ---
	if err := controllers.RegisterValidators(); err != nil {
		log.Fatalf("validators: %v", err)
	}
	authSvc := services.NewAuthService(users, cfg.JWTSecret, cfg.AccessTTL, cfg.BcryptCost)

	health := map[string]controllers.HealthCheck{
		"mongo": func(ctx context.Context) error { return client.Ping(ctx, nil) },
	}
	if rdb != nil {
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, cfg, routes.Deps{
		Listings:      listingSvc,
		Auth:          authSvc,
		Authenticator: authSvc,
		Images:        images,
		Redis:         rdb,
		Health:        health,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := serve(ctx, srv); err != nil {
		log.Printf("server: %v", err)
	}
}

func serve(ctx context.Context, srv *http.Server) error {
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
