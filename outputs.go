package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	snemo "github.com/next-exp/snemo_go/pkg"
	"github.com/next-exp/snemo_go/pkg/cat"
	"github.com/next-exp/snemo_go/pkg/store"
	"github.com/next-exp/snemo_go/pkg/trigger"
	"github.com/next-exp/snemo_go/pkg/writer"
)

// outputs fans the results out to the HDF5 file and the results database,
// either of which may be disabled.
type outputs struct {
	run    uuid.UUID
	writer *writer.Writer
	store  *store.Store
}

func runLabel(config snemo.Configuration) string {
	if config.RunLabel != "" {
		return config.RunLabel
	}
	base := filepath.Base(config.FileIn)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func openOutputs(config snemo.Configuration) (*outputs, error) {
	o := &outputs{run: uuid.New()}
	label := runLabel(config)
	var err error
	if !config.NoDB {
		if o.store, err = store.OpenConfigured(config); err != nil {
			return nil, err
		}
		if err = o.store.Migrate(); err != nil {
			return nil, errors.Join(err, o.Close())
		}
		if o.run, err = o.store.NewRun(label); err != nil {
			return nil, errors.Join(err, o.Close())
		}
	}
	if config.WriteData {
		if o.writer, err = writer.NewWriter(config.FileOut, config.Compression); err != nil {
			return nil, errors.Join(err, o.Close())
		}
		if err = o.writer.WriteRun(o.run, label); err != nil {
			return nil, errors.Join(err, o.Close())
		}
	}
	if VerbosityLevel > 0 {
		logger.Info(fmt.Sprintf("Run %s (%s)", o.run, label), "outputs")
	}
	return o, nil
}

func (o *outputs) saveReco(event *snemo.Event, solutions []cat.ClusteringSolution) error {
	if o.writer != nil {
		if err := o.writer.WriteReco(event, solutions); err != nil {
			return err
		}
	}
	if o.store != nil {
		return o.store.SaveSolutions(o.run, event.Number, solutions)
	}
	return nil
}

func (o *outputs) saveTrigger(event int, result *trigger.Result) error {
	if o.writer != nil {
		if err := o.writer.WriteTrigger(event, result); err != nil {
			return err
		}
	}
	if o.store != nil {
		return o.store.SaveDecisions(o.run, event, result)
	}
	return nil
}

func (o *outputs) Close() error {
	var errs []error
	if o.writer != nil {
		errs = append(errs, o.writer.Close())
	}
	if o.store != nil {
		errs = append(errs, o.store.Close())
	}
	return errors.Join(errs...)
}
