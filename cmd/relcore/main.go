// Command relcore opens a database directory, recovers it, and exits.
// It exists to exercise Engine's wiring end-to-end; real embedding
// happens through package engine directly.
package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"relcore/engine"
)

func main() {
	dir := "./relcore-data"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	e, err := engine.Open(engine.DefaultConfig(dir))
	if err != nil {
		logrus.WithError(err).Fatal("failed to open engine")
	}
	defer e.Close()

	result, err := e.Recover()
	if err != nil {
		logrus.WithError(err).Fatal("recovery failed")
	}
	logrus.WithFields(logrus.Fields{
		"checkpoint_timestamp": result.CheckpointTimestamp,
		"tuples_recovered":     result.TuplesRecovered,
		"log_records_applied":  result.LogRecordsApplied,
	}).Info("recovery complete")
}
