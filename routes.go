package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PaIIermo/DIP-compass-gamification/models"
	"github.com/PaIIermo/DIP-compass-gamification/scoring"
	"github.com/PaIIermo/DIP-compass-gamification/services"
)

// SeriesPoint ist ein Wert einer Zeitreihe.
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

func setupPipelineRoutes(router *gin.Engine, pipeline *services.Pipeline, scheduler *services.Scheduler, defaults services.TriggerOptions, log *zap.Logger) {
	rg := router.Group("/pipeline")

	// Plant die Pipeline neu; fehlende Felder kommen aus der Konfiguration.
	rg.POST("/trigger", func(c *gin.Context) {
		opts := defaults
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&opts); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if _, err := opts.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := scheduler.Start(opts); err != nil {
			log.Error("Scheduler start failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "scheduler error"})
			return
		}
		log.Info("Pipeline triggered",
			zap.String("run_mode", string(opts.RunMode)),
			zap.String("frequency", opts.SnapshotFrequency),
			zap.Bool("mock", opts.UseMockData))
		c.JSON(http.StatusAccepted, gin.H{"status": "scheduled", "schedule": scheduler.Status()})
	})

	rg.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, scheduler.Status())
	})

	rg.DELETE("/schedule", func(c *gin.Context) {
		scheduler.Stop()
		c.JSON(http.StatusOK, gin.H{"status": "stopped"})
	})

	rg.GET("/runs", func(c *gin.Context) {
		limit := queryInt(c, "limit", 20, 1, 200)
		runs, err := pipeline.RecentRuns(c.Request.Context(), limit)
		if err != nil {
			log.Error("Database query for pipeline runs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, runs)
	})
}

func setupSeriesRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	router.GET("/publications/:id/series", func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		if !entityExists(c, db, &models.Publication{}, id, log) {
			return
		}
		var rows []models.PublicationSnapshot
		if err := db.Where("publication_id = ?", id).Order("date").Find(&rows).Error; err != nil {
			dbError(c, log, err)
			return
		}
		points := make([]SeriesPoint, 0, len(rows))
		for _, r := range rows {
			points = append(points, SeriesPoint{Date: scoring.DateKey(r.Date), Value: r.Value})
		}
		respondSeries(c, id, points)
	})

	router.GET("/topics/:id/series", func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		if !entityExists(c, db, &models.Topic{}, id, log) {
			return
		}
		var rows []models.TopicSnapshot
		if err := db.Where("topic_id = ?", id).Order("date").Find(&rows).Error; err != nil {
			dbError(c, log, err)
			return
		}
		points := make([]SeriesPoint, 0, len(rows))
		for _, r := range rows {
			points = append(points, SeriesPoint{Date: scoring.DateKey(r.Date), Value: r.MeanValue})
		}
		respondSeries(c, id, points)
	})

	// Ohne ?topic= die Gesamtreihe, sonst die Reihe des Autors im Topic.
	router.GET("/researchers/:id/series", func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		if !entityExists(c, db, &models.Researcher{}, id, log) {
			return
		}
		var points []SeriesPoint
		if t := c.Query("topic"); t != "" {
			topicID, err := strconv.ParseUint(t, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid topic"})
				return
			}
			if !entityExists(c, db, &models.Topic{}, uint(topicID), log) {
				return
			}
			var rows []models.UserTopicSnapshot
			if err := db.Where("user_id = ? AND topic_id = ?", id, topicID).Order("date").Find(&rows).Error; err != nil {
				dbError(c, log, err)
				return
			}
			for _, r := range rows {
				points = append(points, SeriesPoint{Date: scoring.DateKey(r.Date), Value: r.MeanValue})
			}
		} else {
			var rows []models.UserOverallSnapshot
			if err := db.Where("user_id = ?", id).Order("date").Find(&rows).Error; err != nil {
				dbError(c, log, err)
				return
			}
			for _, r := range rows {
				points = append(points, SeriesPoint{Date: scoring.DateKey(r.Date), Value: r.MeanValue})
			}
		}
		if points == nil {
			points = []SeriesPoint{}
		}
		respondSeries(c, id, points)
	})

	// Rangliste zum letzten (oder angegebenen) Stichtag.
	router.GET("/publications/top", func(c *gin.Context) {
		limit := queryInt(c, "limit", 10, 1, 100)
		var date time.Time
		if d := c.Query("date"); d != "" {
			parsed, err := time.Parse("2006-01-02", d)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
				return
			}
			date = parsed
		} else {
			var dates []time.Time
			if err := db.Model(&models.PublicationSnapshot{}).Distinct("date").Order("date DESC").Limit(1).Pluck("date", &dates).Error; err != nil {
				dbError(c, log, err)
				return
			}
			if len(dates) == 0 {
				c.JSON(http.StatusOK, gin.H{"status": "no_data", "items": []any{}})
				return
			}
			date = dates[0].UTC()
		}

		type topRow struct {
			PublicationID uint    `json:"publication_id"`
			Title         string  `json:"title"`
			Value         float64 `json:"value"`
		}
		var rows []topRow
		err := db.Table("publication_snapshots ps").
			Select("ps.publication_id AS publication_id, p.title AS title, ps.value AS value").
			Joins("JOIN publications p ON p.id = ps.publication_id").
			Where("ps.date = ?", date).
			Order("ps.value DESC, ps.publication_id").
			Limit(limit).
			Scan(&rows).Error
		if err != nil {
			dbError(c, log, err)
			return
		}
		status := "ok"
		if len(rows) == 0 {
			status = "no_data"
			rows = []topRow{}
		}
		c.JSON(http.StatusOK, gin.H{"status": status, "date": scoring.DateKey(date), "items": rows})
	})
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// entityExists schreibt 404, wenn es die Entität nicht gibt.
func entityExists(c *gin.Context, db *gorm.DB, model any, id uint, log *zap.Logger) bool {
	err := db.Select("id").First(model, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return false
	}
	if err != nil {
		dbError(c, log, err)
		return false
	}
	return true
}

// respondSeries unterscheidet "keine Daten" von einer leeren Entität.
func respondSeries(c *gin.Context, id uint, points []SeriesPoint) {
	status := "ok"
	if len(points) == 0 {
		status = "no_data"
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": status, "series": points})
}

func dbError(c *gin.Context, log *zap.Logger, err error) {
	log.Error("Database query failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
}

func queryInt(c *gin.Context, key string, def, lo, hi int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
