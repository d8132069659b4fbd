// Package logging builds the worker and per-product job loggers.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/djzelenak/espa-worker/transfer"
)

// Logger names
const (
	WorkerLoggerName     = "espa.worker"
	ProcessingLoggerName = "espa.processing"
)

// WorkerLogPrefix names the worker log and its archived copies
const WorkerLogPrefix = "espa-worker"

// WorkerLogFilename is the worker log, relative to the log directory
const WorkerLogFilename = WorkerLogPrefix + ".log"

// TimeLayout is used for every log line
const TimeLayout = "2006-01-02 15:04:05.000"

// lineEncoder renders "time - logger - LEVEL - message"
type lineEncoder struct {
	zapcore.Encoder
}

func (e lineEncoder) Clone() zapcore.Encoder {
	return lineEncoder{e.Encoder.Clone()}
}

func (e lineEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	ent.Message = ent.LoggerName + " - " + ent.Level.CapitalString() + " - " + ent.Message
	return e.Encoder.EncodeEntry(ent, fields)
}

func newEncoder() zapcore.Encoder {
	config := zapcore.EncoderConfig{
		TimeKey:          "time",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " - ",
		EncodeTime:       zapcore.TimeEncoderOfLayout(TimeLayout),
		EncodeDuration: func(d time.Duration, encoder zapcore.PrimitiveArrayEncoder) {
			encoder.AppendString(d.String())
		},
	}
	return lineEncoder{zapcore.NewConsoleEncoder(config)}
}

// NewCore writes every entry at or above level to w
func NewCore(w io.Writer, level zapcore.LevelEnabler) zapcore.Core {
	return zapcore.NewCore(newEncoder(), zapcore.Lock(zapcore.AddSync(w)), level)
}

// New returns a logger writing debug and above to w
func New(w io.Writer, name string) *zap.Logger {
	return zap.New(NewCore(w, zapcore.DebugLevel)).Named(name)
}

// WorkerLog is the long lived log shared by every product a worker handles
type WorkerLog struct {
	Path   string
	Logger *zap.Logger
	file   *os.File
}

// NewWorkerLogger writes debug and above to <dir>/espa-worker.log, debug and
// info to stdout and warnings and above to stderr.
func NewWorkerLogger(dir string, stdout, stderr io.Writer) (*WorkerLog, error) {
	path := filepath.Join(dir, WorkerLogFilename)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "opening worker log")
	}

	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l < zapcore.WarnLevel })
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.WarnLevel })
	core := zapcore.NewTee(
		NewCore(file, zapcore.DebugLevel),
		NewCore(stdout, low),
		NewCore(stderr, high),
	)
	return &WorkerLog{
		Path:   path,
		Logger: zap.New(core).Named(WorkerLoggerName),
		file:   file,
	}, nil
}

// Close flushes and closes the log file
func (w *WorkerLog) Close() error {
	return multierr.Append(w.Logger.Sync(), w.file.Close())
}

// JobLogFilename is the job log name for one product
func JobLogFilename(orderID, productID string) string {
	return "espa-" + orderID + "-" + productID + ".log"
}

// JobLog is the log of a single product request
type JobLog struct {
	Path   string
	Logger *zap.Logger
	file   *os.File
}

// OpenJobLog creates <dir>/espa-<order>-<product>.log. Entries from parent,
// when given, are written to the job log as well.
func OpenJobLog(dir, orderID, productID string, debug bool, parent *zap.Logger) (*JobLog, error) {
	path := filepath.Join(dir, JobLogFilename(orderID, productID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "opening job log")
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	core := NewCore(file, level)
	if parent != nil {
		core = zapcore.NewTee(core, parent.Core())
	}
	return &JobLog{
		Path:   path,
		Logger: zap.New(core).Named(ProcessingLoggerName),
		file:   file,
	}, nil
}

// Contents returns what has been logged so far
func (j *JobLog) Contents() (string, error) {
	_ = j.Logger.Sync()
	return ReadLogFile(j.Path)
}

// Close flushes and closes the log file
func (j *JobLog) Close() error {
	return multierr.Append(j.Logger.Sync(), j.file.Close())
}

// Delete closes the log and removes its file
func (j *JobLog) Delete() error {
	err := j.Close()
	if rmErr := os.Remove(j.Path); rmErr != nil && !os.IsNotExist(rmErr) {
		err = multierr.Append(err, rmErr)
	}
	return err
}

// ReadLogFile returns the contents of a log file, "" when it does not exist
func ReadLogFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(data), nil
}

// ArchiveLogFiles copies the job log and the worker log into
// <distributionDir>/logs/<order>.
func ArchiveLogFiles(distributionDir, orderID, productID, jobLog, workerLog string) error {
	destination := filepath.Join(distributionDir, "logs", orderID)
	if err := os.MkdirAll(destination, 0755); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Chmod(destination, 0755); err != nil {
		return errors.WithStack(err)
	}

	var err error
	if jobLog != "" {
		err = multierr.Append(err, transfer.CopyFile(jobLog, filepath.Join(destination, filepath.Base(jobLog))))
	}
	if workerLog != "" {
		name := WorkerLogPrefix + "-" + orderID + "-" + productID + ".log"
		err = multierr.Append(err, transfer.CopyFile(workerLog, filepath.Join(destination, name)))
	}
	return err
}
