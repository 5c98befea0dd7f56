package logger

import (
	"context"
	"fmt"
	"time"

	"go-dbsync/internal/config"
	"go-dbsync/internal/database"
	"go-dbsync/internal/models"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap/zapcore"
)

// LogCollection holds persisted engine logs.
const LogCollection = "engine_logs"

// LogEntry holds the data passed from Zap to our worker
type LogEntry struct {
	Level    zapcore.Level
	Message  string
	JobID    string
	ConfigID string
	Caller   string // Function name
	Fields   map[string]interface{}
	Time     time.Time
}

// LogSink persists one log record.
type LogSink interface {
	InsertOne(ctx context.Context, document interface{}) error
}

type collectionSink struct {
	col *mongo.Collection
}

func (s collectionSink) InsertOne(ctx context.Context, document interface{}) error {
	_, err := s.col.InsertOne(ctx, document)
	return err
}

// DBLogWriter handles the async writing
type DBLogWriter struct {
	sink    LogSink
	logChan chan LogEntry
	done    chan struct{}
}

// NewDBLogWriter initializes the worker
func NewDBLogWriter(mongodb *database.MongodbDB, cfg *config.Config) *DBLogWriter {
	return newDBLogWriter(collectionSink{col: mongodb.DB.Collection(LogCollection)}, 1000)
}

func newDBLogWriter(sink LogSink, buffer int) *DBLogWriter {
	writer := &DBLogWriter{
		sink:    sink,
		logChan: make(chan LogEntry, buffer),
		done:    make(chan struct{}),
	}

	// Start the background worker immediately
	go writer.processLogs()

	return writer
}

// AddLog is called by our Zap hook. A full buffer drops the entry.
func (w *DBLogWriter) AddLog(entry LogEntry) {
	select {
	case w.logChan <- entry:
	default:
		fmt.Println("DB Log Channel Full! Dropping log:", entry.Message)
	}
}

// Close stops accepting entries and waits for the buffer to drain.
func (w *DBLogWriter) Close() {
	close(w.logChan)
	<-w.done
}

func (w *DBLogWriter) processLogs() {
	defer close(w.done)
	for entry := range w.logChan {
		created := entry.Time.UTC()
		if entry.Time.IsZero() {
			created = time.Now().UTC()
		}

		record := models.EngineLog{
			Message:      entry.Message,
			Level:        entry.Level.String(),
			LogLevelId:   mapLevelToInt(entry.Level),
			JobID:        entry.JobID,
			ConfigID:     entry.ConfigID,
			Caller:       entry.Caller,
			Fields:       entry.Fields,
			CreatedOnUtc: created,
		}

		// Errors are ignored to keep the engine running
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		w.sink.InsertOne(ctx, record)
		cancel()
	}
}

func mapLevelToInt(l zapcore.Level) int {
	switch l {
	case zapcore.DebugLevel:
		return 10
	case zapcore.InfoLevel:
		return 20
	case zapcore.WarnLevel:
		return 30
	case zapcore.ErrorLevel:
		return 40
	case zapcore.FatalLevel:
		return 50
	default:
		return 20
	}
}
