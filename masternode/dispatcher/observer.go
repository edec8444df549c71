package dispatcher

import (
	"github.com/hedisam/matpipe/models"
	"github.com/sirupsen/logrus"
)

// logObserver reports worker lifecycle events on the dispatcher's diagnostic stream.
type logObserver struct {
	log *logrus.Logger
}

func (o logObserver) WorkerStarted(w models.WorkerInfo) {
	o.log.WithFields(logrus.Fields{"worker_id": w.ID(), "index": w.Index()}).Debug("worker started")
}

func (o logObserver) BatchDone(w models.WorkerInfo, b models.Batch) {
	o.log.WithFields(logrus.Fields{
		"worker_id":  w.ID(),
		"job_id":     b.JobID,
		"path":       b.Path,
		"table_rows": b.TableRows,
	}).Debug("batch appended")
}

func (o logObserver) WorkerExited(w models.WorkerInfo, code int, err error) {
	entry := o.log.WithFields(logrus.Fields{"worker_id": w.ID(), "index": w.Index(), "code": code})
	if err != nil {
		entry.WithError(err).Warn("worker failed")
		return
	}
	entry.Info("worker finished")
}
