package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chapattend/internal/attendance"
	"chapattend/internal/auth"
	"chapattend/internal/config"
	"chapattend/internal/httpmiddleware"
	"chapattend/internal/queue"
	"chapattend/internal/report"
	"chapattend/internal/store"
)

var checkinsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "chapattend_checkins_total",
	Help: "Check-ins recorded, by arrival status.",
}, []string{"status"})

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	prometheus.MustRegister(checkinsTotal)

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "chapattend:checkins")
	}

	repo := attendance.NewRepository(db.Client)
	att := attendance.NewService(repo, cfg.GraceWindow)
	ctx := context.Background()

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/signup", func(c *gin.Context) {
		var req struct {
			Email     string `json:"email" binding:"required,email"`
			Password  string `json:"password" binding:"required,min=8"`
			FirstName string `json:"first_name" binding:"required"`
			LastName  string `json:"last_name" binding:"required"`
			School    string `json:"school" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		school := strings.TrimSpace(req.School)
		taken, err := repo.SchoolExists(c.Request.Context(), school)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
			return
		}
		if taken {
			c.JSON(http.StatusConflict, gin.H{"error": "an account for this school already exists"})
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
			return
		}

		officer, err := repo.CreateOfficer(c.Request.Context(), attendance.Officer{
			Email:        strings.TrimSpace(req.Email),
			PasswordHash: hash,
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
			School:       school,
		})
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
			return
		}

		tokens, err := auth.Issue(officer.ID, officer.School, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		if err := repo.SaveRefreshToken(c.Request.Context(), officer.ID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
			log.Printf("save refresh token failed for officer %s: %v", officer.ID, err)
		}

		c.JSON(http.StatusCreated, gin.H{
			"officer":       officer,
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		officer, err := repo.GetOfficerByEmail(c.Request.Context(), req.Email)
		if err != nil {
			if errors.Is(err, attendance.ErrNotFound) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
			return
		}
		if !auth.VerifyPassword(officer.PasswordHash, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		tokens, err := auth.Issue(officer.ID, officer.School, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		if err := repo.SaveRefreshToken(c.Request.Context(), officer.ID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
			log.Printf("save refresh token failed for officer %s: %v", officer.ID, err)
		}

		c.JSON(http.StatusOK, gin.H{
			"officer":       officer,
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.OfficerAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	// ownedSession loads the session from the path id and enforces ownership.
	// Foreign and unknown ids both read as 404.
	ownedSession := func(c *gin.Context) (attendance.Session, bool) {
		claims := officerClaims(c)
		sess, err := repo.GetSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, attendance.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			} else {
				c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
			}
			return attendance.Session{}, false
		}
		if sess.OfficerID != claims.Subject {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return attendance.Session{}, false
		}
		return sess, true
	}

	authGroup.POST("/sessions", func(c *gin.Context) {
		var req struct {
			StartTime string `json:"start_time"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claims := officerClaims(c)
		sess, err := att.StartSession(c.Request.Context(), attendance.Owner{
			OfficerID: claims.Subject,
			School:    claims.School,
		}, req.StartTime)
		if err != nil {
			if attendance.IsValidation(err) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
			return
		}

		c.JSON(http.StatusCreated, sess)
	})

	authGroup.GET("/sessions", func(c *gin.Context) {
		claims := officerClaims(c)
		sessions, err := repo.ListSessions(c.Request.Context(), claims.Subject)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	})

	authGroup.GET("/sessions/:id/records", func(c *gin.Context) {
		sess, ok := ownedSession(c)
		if !ok {
			return
		}
		records, err := repo.ListRecords(c.Request.Context(), sess.ID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	authGroup.POST("/sessions/:id/checkins", func(c *gin.Context) {
		sess, ok := ownedSession(c)
		if !ok {
			return
		}

		var req struct {
			FirstName   string `json:"first_name"`
			LastName    string `json:"last_name"`
			ArrivalTime string `json:"arrival_time"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		existing, err := repo.ListRecords(c.Request.Context(), sess.ID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
			return
		}

		rec, err := att.CheckIn(c.Request.Context(), &sess, req.FirstName, req.LastName, req.ArrivalTime, existing)
		if err != nil {
			switch {
			case errors.Is(err, attendance.ErrAlreadyCheckedIn):
				c.JSON(http.StatusConflict, gin.H{"error": "already checked in"})
			case errors.Is(err, attendance.ErrNoActiveSession):
				c.JSON(http.StatusConflict, gin.H{"error": "no active session"})
			case attendance.IsValidation(err):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
			}
			return
		}

		checkinsTotal.WithLabelValues(string(rec.Status)).Inc()
		publishCheckin(ctx, q, redisClient, rec)

		c.JSON(http.StatusCreated, rec)
	})

	authGroup.GET("/sessions/:id/summary", func(c *gin.Context) {
		sess, ok := ownedSession(c)
		if !ok {
			return
		}

		// Fast path from the worker-maintained cache, records as fallback.
		if sum, cached, err := redisClient.ReadTally(c.Request.Context(), sess.ID); err == nil && cached {
			c.JSON(http.StatusOK, sum)
			return
		}

		records, err := repo.ListRecords(c.Request.Context(), sess.ID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
			return
		}
		c.JSON(http.StatusOK, attendance.Summarize(records))
	})

	authGroup.GET("/sessions/:id/export", func(c *gin.Context) {
		sess, ok := ownedSession(c)
		if !ok {
			return
		}
		records, err := repo.ListRecords(c.Request.Context(), sess.ID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
			return
		}

		data, filename := report.Render(sess, records)
		c.Header("Content-Description", "File Transfer")
		c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
		c.Data(http.StatusOK, "text/csv", data)
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// tallyCache is the slice of the Redis wrapper the check-in path needs to
// invalidate a session's cached tally.
type tallyCache interface {
	DropTally(ctx context.Context, sessionID string) error
}

// publishCheckin hands a recorded check-in to the tally worker. A failed
// publish means the worker never sees the event and the cached tally would
// undercount from then on, so the session's hash is dropped and the summary
// endpoint re-derives from records until the cache is rebuilt.
func publishCheckin(ctx context.Context, q queue.Queue, cache tallyCache, rec attendance.Record) {
	if err := q.Publish(ctx, queue.Message{Type: "checkin", Body: []byte(rec.ID)}); err != nil {
		log.Printf("queue publish failed: %v", err)
		if err := cache.DropTally(ctx, rec.SessionID); err != nil {
			log.Printf("tally drop failed for session %s: %v", rec.SessionID, err)
		}
	}
}

func officerClaims(c *gin.Context) auth.Claims {
	claimsAny, _ := c.Get("claims")
	claims, _ := claimsAny.(auth.Claims)
	return claims
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
