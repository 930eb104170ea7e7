package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/promptlane/promptlane/internal/model"
)

// ExportWriter writes stored chat entries to an analysis file.
type ExportWriter interface {
	// Open initializes the writer for the given path
	Open(path string) error

	// Write writes a single entry to the output
	Write(entry model.ChatEntry) error

	// Close closes the writer and releases resources
	Close() error

	// Format returns the output format name
	Format() string
}

// NewExportWriter creates a writer for the given format
func NewExportWriter(format string) (ExportWriter, error) {
	switch format {
	case "jsonl", "":
		return &JSONLExportWriter{}, nil
	case "parquet":
		return NewParquetExportWriter(), nil
	}
	return nil, fmt.Errorf("unsupported export format: %s (supported: jsonl, parquet)", format)
}

// Export writes every stored entry through a writer of the given format.
func (s *ChatStore) Export(path, format string) (int, error) {
	w, err := NewExportWriter(format)
	if err != nil {
		return 0, err
	}
	if err := w.Open(path); err != nil {
		return 0, err
	}

	chats := s.Chats()
	for _, entry := range chats {
		if err := w.Write(entry); err != nil {
			w.Close()
			return 0, err
		}
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return len(chats), nil
}

// JSONLExportWriter writes entries as JSON Lines
type JSONLExportWriter struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func (w *JSONLExportWriter) Format() string { return "jsonl" }

func (w *JSONLExportWriter) Open(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w.file = file
	w.writer = bufio.NewWriterSize(file, 64*1024)
	return nil
}

func (w *JSONLExportWriter) Write(entry model.ChatEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	if _, err := w.writer.WriteString("\n"); err != nil {
		return err
	}
	return w.writer.Flush()
}

func (w *JSONLExportWriter) Close() error {
	if w.writer != nil {
		if err := w.writer.Flush(); err != nil {
			return err
		}
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// exportRecord is the flat row shape for Parquet export. parquet-go needs
// struct tags, so nested request/response maps are flattened here.
type exportRecord struct {
	Timestamp  string  `parquet:"name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8"`
	BatchID    string  `parquet:"name=batch_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	RequestID  string  `parquet:"name=request_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Username   string  `parquet:"name=username, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Priority   string  `parquet:"name=priority, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Prompt     string  `parquet:"name=prompt, type=BYTE_ARRAY, convertedtype=UTF8"`
	Response   string  `parquet:"name=response, type=BYTE_ARRAY, convertedtype=UTF8"`
	TokensUsed int64   `parquet:"name=tokens_used, type=INT64"`
	LatencyMS  float64 `parquet:"name=latency_ms, type=DOUBLE"`
}

// ParquetExportWriter writes entries in Parquet columnar format. Entries
// are buffered and written on Close; parquet has no true append.
type ParquetExportWriter struct {
	path    string
	entries []model.ChatEntry
	mu      sync.Mutex
}

// NewParquetExportWriter creates a new Parquet export writer
func NewParquetExportWriter() *ParquetExportWriter {
	return &ParquetExportWriter{entries: make([]model.ChatEntry, 0, 1000)}
}

func (w *ParquetExportWriter) Format() string { return "parquet" }

func (w *ParquetExportWriter) Open(path string) error {
	w.path = path
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (w *ParquetExportWriter) Write(entry model.ChatEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, entry)
	return nil
}

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func getNumber(m map[string]any, key string) float64 {
	n, _ := m[key].(float64)
	return n
}

func (w *ParquetExportWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	fw, err := local.NewLocalFileWriter(w.path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(exportRecord), 4)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, entry := range w.entries {
		record := exportRecord{
			Timestamp:  entry.Timestamp,
			BatchID:    entry.BatchID,
			RequestID:  getString(entry.Request, "request_id"),
			Username:   getString(entry.Request, "username"),
			Priority:   normalizePriority(entry.Request["priority"]),
			Prompt:     getString(entry.Request, "prompt"),
			Response:   getString(entry.Response, "text"),
			TokensUsed: int64(getNumber(entry.Response, "tokens_used")),
			LatencyMS:  getNumber(entry.Response, "latency_ms"),
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize parquet: %w", err)
	}
	return nil
}
