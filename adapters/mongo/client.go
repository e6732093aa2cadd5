package mongo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const defaultDatabase = "buddy"

// MongoConfig holds the archive database connection settings
type MongoConfig struct {
	URI      string // Required: connection string
	Database string // Optional: database name (default: "buddy")
}

// ValidateMongoConfig validates the MongoConfig
func ValidateMongoConfig(config MongoConfig) error {
	if config.URI == "" {
		return fmt.Errorf("mongodb URI is required")
	}
	if !strings.HasPrefix(config.URI, "mongodb://") && !strings.HasPrefix(config.URI, "mongodb+srv://") {
		return fmt.Errorf("mongodb URI must use the mongodb:// or mongodb+srv:// scheme")
	}
	return nil
}

// NewMongoConfigFromEnv reads MongoConfig from MONGODB_URI and MONGODB_DATABASE
func NewMongoConfigFromEnv() MongoConfig {
	return MongoConfig{
		URI:      os.Getenv("MONGODB_URI"),
		Database: os.Getenv("MONGODB_DATABASE"),
	}
}

// Client wraps the MongoDB client and database
type Client struct {
	*mongo.Client
	Database *mongo.Database
	logger   *zap.Logger
}

// NewClient connects to MongoDB and verifies the connection
func NewClient(ctx context.Context, config MongoConfig, logger *zap.Logger) (*Client, error) {
	if err := ValidateMongoConfig(config); err != nil {
		return nil, err
	}
	if config.Database == "" {
		config.Database = defaultDatabase
		logger.Info("Using default database", zap.String("database", config.Database))
	}

	clientOptions := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(10).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(30 * time.Minute).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Successfully connected to MongoDB", zap.String("database", config.Database))

	return &Client{
		Client:   client,
		Database: client.Database(config.Database),
		logger:   logger,
	}, nil
}

// Close closes the MongoDB connection
func (c *Client) Close(ctx context.Context) error {
	if err := c.Client.Disconnect(ctx); err != nil {
		c.logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
		return err
	}
	c.logger.Info("Disconnected from MongoDB")
	return nil
}
