package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	snemo "github.com/next-exp/snemo_go/pkg"
	"github.com/next-exp/snemo_go/pkg/trigger"
)

// runTrigger feeds the events to a single algorithm, in file order, since
// the previous event buffer carries over from one event to the next.
func runTrigger(ctx context.Context, configuration snemo.Configuration) (err error) {
	config, err := trigger.ConfigFromProperties(configuration.Trigger)
	if err != nil {
		return err
	}
	algorithm, err := trigger.NewAlgorithm(config, nil)
	if err != nil {
		return err
	}

	file, err := os.Open(configuration.FileIn)
	if err != nil {
		return &snemo.ErrOpenFile{Filename: configuration.FileIn, Err: err}
	}
	defer file.Close()

	out, err := openOutputs(configuration)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	fileReader := NewFileReader(file, configuration.Skip, configuration.MaxEvents)
	start := time.Now()
	evtsProcessed, accepted := 0, 0
	for {
		event, err := fileReader.getNextEvent()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := algorithm.Process(ctx, event.CaloCTWs, event.GeigerCTWs)
		if err != nil {
			if fatal(err) {
				return err
			}
			logger.Error(fmt.Errorf("event %d: %w", event.Number, err).Error())
			continue
		}
		evtsProcessed++
		if result.Decision {
			accepted++
		}
		if VerbosityLevel > 0 {
			logger.Info(fmt.Sprintf("Event %d: %d L1, %d L2, %d previous events", event.Number,
				len(result.L1), len(result.L2), len(result.PreviousEvents)), "trigger")
		}
		if result.IgnoredCells > 0 || result.OutOfWindow > 0 {
			logger.Info(fmt.Sprintf("Event %d: %d cells outside the tracker, %d records outside the event window",
				event.Number, result.IgnoredCells, result.OutOfWindow), "trigger")
		}
		if err := out.saveTrigger(event.Number, result); err != nil {
			return err
		}
	}

	logger.Info(fmt.Sprintf("Events processed: %d, accepted: %d", evtsProcessed, accepted), "trigger")
	logger.Info(fmt.Sprintf("Total time: %d ms", time.Since(start).Milliseconds()), "trigger")
	return nil
}

func runMemgen(dir string, mode string) error {
	config := trigger.DefaultMemoryConfig()
	var err error
	if config.Mem2.Mode, err = trigger.ParseMem2Mode(mode); err != nil {
		return err
	}
	memories, err := trigger.BuildMemories(config)
	if err != nil {
		return err
	}
	if err := memories.Store(dir); err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("Memories (mem2 %s) written to %s", config.Mem2.Mode, dir), "memgen")
	return nil
}
