// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "go.uber.org/zap"

// Platform is the host configuration for a [Runtime]: executors, the
// timer scheduler, fatal-defect classification, and failure reporting.
type Platform struct {
	// Executor runs ordinary fiber turns.
	Executor Executor

	// BlockingExecutor runs effects declared blocking; it must accept
	// unbounded tasks.
	BlockingExecutor Executor

	// Scheduler delivers delayed tasks; it backs Sleep.
	Scheduler Scheduler

	// Fatal classifies panic values that must bypass effect-level
	// handling entirely.
	Fatal func(defect any) bool

	// ReportFatal receives fatal defects before they are rethrown.
	ReportFatal func(defect any)

	// ReportFailure receives the cause of every failed fiber whose exit
	// had no observers, except causes consisting only of interruptions.
	ReportFailure func(Cause)
}

// NewPlatform builds a platform with default executors and timer
// scheduler, reporting through the given logger.
func NewPlatform(logger *zap.Logger) *Platform {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Platform{
		Executor:         NewExecutor(DefaultYieldOpCount),
		BlockingExecutor: NewBlockingExecutor(),
		Scheduler:        NewTimerScheduler(),
		Fatal:            func(any) bool { return false },
		ReportFatal: func(defect any) {
			logger.Fatal("fatal defect", zap.Any("defect", defect))
		},
		ReportFailure: func(c Cause) {
			logger.Error("unobserved fiber failure", zap.String("cause", PrettyCause(c)))
		},
	}
}

// DefaultPlatform builds the production platform: unobserved failures
// are logged to stderr.
func DefaultPlatform() *Platform {
	return NewPlatform(zap.Must(zap.NewProduction()))
}
