package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/optexplore/internal/opt"
)

// TraceEntry is one line of a method trace.
type TraceEntry struct {
	// Iteration is the driver iteration (or population batch) number
	Iteration int `json:"iteration"`

	// Cost is the best cost at this iteration
	Cost float64 `json:"cost"`

	Timestamp time.Time `json:"timestamp"`

	Params []float64 `json:"params,omitempty"`
}

// TracePath returns <baseDir>/runs/<runID>/traces/<method>.jsonl.
func TracePath(baseDir, runID, method string) string {
	return filepath.Join(baseDir, "runs", runID, "traces", method+".jsonl")
}

// TraceWriter writes trace entries to a JSONL file.
// It uses buffered I/O and is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string

	// withParams controls whether Record keeps the parameter vector.
	withParams bool
}

var _ opt.Recorder = (*TraceWriter)(nil)

// NewTraceWriter creates the trace file of one method in one run.
// If append is true, new entries are appended to an existing file.
func NewTraceWriter(baseDir, runID, method string, append bool) (*TraceWriter, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id cannot be empty")
	}
	if err := validateMethodName(method); err != nil {
		return nil, fmt.Errorf("invalid method name: %w", err)
	}

	path := TracePath(baseDir, runID, method)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}

	var (
		file *os.File
		err  error
	)
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:       file,
		writer:     bufio.NewWriterSize(file, 64*1024),
		path:       path,
		withParams: true,
	}, nil
}

// OmitParams makes Record drop parameter vectors to keep traces small.
func (tw *TraceWriter) OmitParams() *TraceWriter {
	tw.mu.Lock()
	tw.withParams = false
	tw.mu.Unlock()
	return tw
}

// Record implements opt.Recorder.
func (tw *TraceWriter) Record(it opt.Iteration) error {
	entry := TraceEntry{Iteration: it.Iter, Cost: it.Cost, Timestamp: time.Now()}

	tw.mu.Lock()
	keep := tw.withParams
	tw.mu.Unlock()
	if keep {
		entry.Params = append([]float64(nil), it.Params...)
	}
	return tw.Write(entry)
}

// Write appends a trace entry. The entry is buffered until Flush or Close.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

// Flush writes buffered data and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}

	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}

	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads trace entries from a JSONL file.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader opens the trace of one method in one run.
func NewTraceReader(baseDir, runID, method string) (*TraceReader, error) {
	file, err := os.Open(TracePath(baseDir, runID, method))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{ID: runID + "/" + method}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &TraceReader{file: file, scanner: scanner}, nil
}

// Read returns the next entry, or io.EOF when the trace is exhausted.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}

	return &entry, nil
}

// ReadAll reads all remaining entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry

	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	return entries, nil
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// ListTraces returns the sorted method names that have a trace in a run.
func ListTraces(baseDir, runID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(baseDir, "runs", runID, "traces"))
	if os.IsNotExist(err) {
		return []string{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read trace directory: %w", err)
	}

	methods := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		methods = append(methods, strings.TrimSuffix(name, ".jsonl"))
	}
	sort.Strings(methods)
	return methods, nil
}

// DeleteTrace removes one trace file. Returns nil if it doesn't exist.
func DeleteTrace(baseDir, runID, method string) error {
	err := os.Remove(TracePath(baseDir, runID, method))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}

	return nil
}
