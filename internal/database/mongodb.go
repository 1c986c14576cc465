package database

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"report-coordinator/internal/config"
	"report-coordinator/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBClient wraps MongoDB access to the reports and cleanup_logs collections
type MongoDBClient struct {
	client      *mongo.Client
	database    *mongo.Database
	reports     *mongo.Collection
	cleanupLogs *mongo.Collection
}

// NewMongoDBClient creates a new MongoDB client for report storage
func NewMongoDBClient(cfg config.MongoDBConfig) (*MongoDBClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Build connection URI
	uri := cfg.URI
	if uri == "" {
		// Build URI from components if URI not provided
		if cfg.Username != "" && cfg.Password != "" {
			// Use url.UserPassword to properly encode username and password
			userInfo := url.UserPassword(cfg.Username, cfg.Password)
			uri = fmt.Sprintf("mongodb://%s@%s:%s/%s?authSource=%s",
				userInfo.String(),
				cfg.Host,
				cfg.Port,
				cfg.Database,
				url.QueryEscape(cfg.AuthSource),
			)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%s/%s",
				cfg.Host,
				cfg.Port,
				cfg.Database,
			)
		}
	}

	// Log connection attempt (mask password for security)
	logURI := uri
	if cfg.Password != "" && cfg.Username != "" {
		userInfo := url.User(cfg.Username)
		authSource := cfg.AuthSource
		if authSource == "" {
			authSource = "admin"
		}
		logURI = fmt.Sprintf("mongodb://%s:***@%s:%s/%s?authSource=%s",
			userInfo.String(), cfg.Host, cfg.Port, cfg.Database, url.QueryEscape(authSource))
	}
	log.Printf("Attempting to connect to MongoDB at %s", logURI)

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB at %s: %w", logURI, err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB at %s: %w", logURI, err)
	}

	database := client.Database(cfg.Database)
	reports := database.Collection(cfg.Collection)
	cleanupLogs := database.Collection("cleanup_logs")

	// Index supporting the failed-report sweeper query
	sweeperIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "metadata.createdAt", Value: 1}},
	}
	_, err = reports.Indexes().CreateOne(ctx, sweeperIndex)
	if err != nil {
		// Index might already exist, that's okay
		log.Printf("Note: MongoDB index creation: %v", err)
	}

	// Index for per-user report listings
	ownerIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "metadata.createdAt", Value: -1}},
	}
	_, err = reports.Indexes().CreateOne(ctx, ownerIndex)
	if err != nil {
		log.Printf("Note: MongoDB owner index creation: %v", err)
	}

	return &MongoDBClient{
		client:      client,
		database:    database,
		reports:     reports,
		cleanupLogs: cleanupLogs,
	}, nil
}

// Close closes the MongoDB client connection
func (c *MongoDBClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}

// GetReport retrieves a report by id. Returns (nil, nil) when no such report exists.
func (c *MongoDBClient) GetReport(id string) (*models.Report, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var report models.Report
	err := c.reports.FindOne(ctx, bson.M{"_id": id}).Decode(&report)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query report %s: %w", id, err)
	}

	return &report, nil
}

// InsertReport stores a newly created report document
func (c *MongoDBClient) InsertReport(report *models.Report) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := c.reports.InsertOne(ctx, report)
	if err != nil {
		return fmt.Errorf("failed to insert report %s: %w", report.ID, err)
	}

	return nil
}

// DeleteReport removes a report document. Returns false when the report was
// already gone, which callers treat as success or not-found depending on context.
func (c *MongoDBClient) DeleteReport(id string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := c.reports.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete report %s: %w", id, err)
	}

	return res.DeletedCount > 0, nil
}

// MarkProcessing flips a pending report to processing after the analysis worker
// accepted the job. The write is conditional on the report still being pending,
// so a concurrent cancel is never resurrected.
func (c *MongoDBClient) MarkProcessing(id, taskID string) (bool, error) {
	now := time.Now()
	update := bson.M{"$set": bson.M{
		"status":                 models.ReportStatusProcessing,
		"progress":               30,
		"currentStage":           "AI_ANALYSIS",
		"algorithm.taskId":       taskID,
		"algorithm.requestTime":  now,
		"metadata.updatedAt":     now,
	}}
	return c.updateIfStatus(id, []models.ReportStatus{models.ReportStatusPending}, update)
}

// ResetForRetry resets a failed report to processing for a retry attempt.
// The retry counter only ever increments; requestTime is refreshed and the
// previous response/error cleared. Conditional on status still being failed.
func (c *MongoDBClient) ResetForRetry(id string) (bool, error) {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"status":                     models.ReportStatusProcessing,
			"progress":                   10,
			"currentStage":               "RETRY_PROCESSING",
			"estimatedTimeRemaining":     180,
			"algorithm.requestTime":      now,
			"algorithm.responseTime":     nil,
			"algorithm.errorMessage":     "",
			"algorithm.callbackReceived": false,
			"metadata.updatedAt":         now,
		},
		"$inc": bson.M{"algorithm.retryCount": 1},
	}
	return c.updateIfStatus(id, []models.ReportStatus{models.ReportStatusFailed}, update)
}

// SetTaskID records the worker task id assigned on resubmission
func (c *MongoDBClient) SetTaskID(id, taskID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"algorithm.taskId":   taskID,
		"metadata.updatedAt": time.Now(),
	}}

	_, err := c.reports.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to record task id for report %s: %w", id, err)
	}
	return nil
}

// MarkFailed records a failure outcome with an explanatory error message.
// Unconditional: the failure write must land regardless of current status.
func (c *MongoDBClient) MarkFailed(id, errorMessage string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	update := bson.M{"$set": bson.M{
		"status":                 models.ReportStatusFailed,
		"progress":               0,
		"currentStage":           "FAILED",
		"algorithm.responseTime": now,
		"algorithm.errorMessage": errorMessage,
		"metadata.updatedAt":     now,
	}}

	_, err := c.reports.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark report %s failed: %w", id, err)
	}
	return nil
}

// CompleteReport transitions a processing report to completed with its output
// artifacts. Conditional on status still being processing: if the report was
// canceled, deleted or already finalized in the meantime the write is a no-op
// and false is returned.
func (c *MongoDBClient) CompleteReport(id string, files map[string]models.ReportFile, responseTime time.Time, processingTime float64) (bool, error) {
	now := time.Now()
	update := bson.M{"$set": bson.M{
		"status":                     models.ReportStatusCompleted,
		"progress":                   100,
		"currentStage":               "COMPLETED",
		"estimatedTimeRemaining":     0,
		"output.reportFiles":         files,
		"algorithm.responseTime":     responseTime,
		"algorithm.processingTime":   processingTime,
		"algorithm.callbackReceived": true,
		"metadata.updatedAt":         now,
		"metadata.completedAt":       now,
	}}
	return c.updateIfStatus(id, []models.ReportStatus{models.ReportStatusProcessing}, update)
}

// UpdateAdvisoryProgress refreshes the display-only progress fields. It is
// conditional on the report still being in flight so a poll can never overwrite
// a terminal status.
func (c *MongoDBClient) UpdateAdvisoryProgress(id string, progress int, stage string, estimatedTimeRemaining int) error {
	update := bson.M{"$set": bson.M{
		"progress":               models.ClampProgress(progress),
		"currentStage":           stage,
		"estimatedTimeRemaining": estimatedTimeRemaining,
		"metadata.updatedAt":     time.Now(),
	}}
	_, err := c.updateIfStatus(id, []models.ReportStatus{
		models.ReportStatusPending,
		models.ReportStatusProcessing,
	}, update)
	return err
}

// updateIfStatus performs a compare-and-set write: the update only commits if
// the stored status is one of the expected values.
func (c *MongoDBClient) updateIfStatus(id string, expected []models.ReportStatus, update bson.M) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	filter := bson.M{"_id": id, "status": bson.M{"$in": expected}}
	res, err := c.reports.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to update report %s: %w", id, err)
	}

	return res.MatchedCount > 0, nil
}

// FindFailedReportsBefore returns failed reports created before the cutoff,
// capped at limit so a single sweep has bounded latency.
func (c *MongoDBClient) FindFailedReportsBefore(cutoff time.Time, limit int64) ([]models.Report, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{
		"status":             models.ReportStatusFailed,
		"metadata.createdAt": bson.M{"$lt": cutoff},
	}
	opts := options.Find().SetLimit(limit)

	cursor, err := c.reports.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed reports: %w", err)
	}
	defer cursor.Close(ctx)

	var reports []models.Report
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("failed to decode failed reports: %w", err)
	}

	return reports, nil
}

// InsertCleanupLog appends an audit record for a reclaimed report
func (c *MongoDBClient) InsertCleanupLog(entry models.CleanupLogEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.cleanupLogs.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to insert cleanup log for report %s: %w", entry.ReportID, err)
	}

	return nil
}
