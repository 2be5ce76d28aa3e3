package importstore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/importscheduler/internal/common/logging"
	"github.com/G-Research/importscheduler/internal/common/util"
)

// FailureService records why an import, or part of one, failed.
type FailureService struct {
	store    *Store
	failures *prometheus.CounterVec
}

func NewFailureService(store *Store, registerer prometheus.Registerer) *FailureService {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	return &FailureService{
		store: store,
		failures: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "importer_failures_total",
				Help: "Number of import failures recorded",
			},
			[]string{"error_source", "fail_import"},
		),
	}
}

// Track records err, raised by errorSource while importing sourceID. If failImport is set the import as a
// whole is marked as failed.
func (s *FailureService) Track(ctx context.Context, sourceID string, errorSource string, err error, failImport bool) error {
	logging.WithStacktrace(log.WithFields(log.Fields{
		"source_id":    sourceID,
		"error_source": errorSource,
		"fail_import":  failImport,
	}), err).Error("import failed")

	failImportLabel := "false"
	if failImport {
		failImportLabel = "true"
	}
	s.failures.WithLabelValues(errorSource, failImportLabel).Inc()

	record := FailureRecord{
		ID:               util.NewULID(),
		SourceID:         sourceID,
		ErrorSource:      errorSource,
		ExceptionClass:   logging.ErrorClassName(err),
		ExceptionMessage: err.Error(),
		FailImport:       failImport,
		CreatedAt:        s.store.now(),
	}
	if err := s.store.insertFailure(ctx, record); err != nil {
		return err
	}
	if failImport {
		if err := s.store.SetState(ctx, sourceID, StatusFailed, record.ExceptionMessage); err != nil {
			return errors.WithMessage(err, "marking import as failed")
		}
	}
	return nil
}
