package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/marwant/zizh/internal/recording"
	"github.com/marwant/zizh/internal/service"
)

// validatePipeline checks the -p steps: r=record, p=play, s=slow-motion play.
func validatePipeline(steps string) error {
	for _, step := range strings.ToLower(steps) {
		switch step {
		case 'r', 'p', 's':
		default:
			return fmt.Errorf("invalid pipeline step '%c' (valid: r=record, p=play, s=slow-motion play)", step)
		}
	}
	return nil
}

// executePipeline runs the steps after startStep on rec. startStep 0 runs
// the whole pipeline.
func executePipeline(ctx context.Context, svc *service.Service, rec recording.Recording, startStep rune) error {
	if pipeline == "" {
		return nil
	}
	if err := validatePipeline(pipeline); err != nil {
		return err
	}

	steps := []rune(strings.ToLower(pipeline))
	if startStep != 0 {
		startIndex := strings.IndexRune(string(steps), startStep)
		if startIndex == -1 {
			return fmt.Errorf("step '%c' not found in pipeline '%s'", startStep, pipeline)
		}
		steps = steps[startIndex+1:]
	}

	for i, step := range steps {
		fmt.Printf("Pipeline: executing step %d/%d: '%c'...\n", i+1, len(steps), step)

		var err error
		switch step {
		case 'r':
			rec, err = recordOnce(ctx, svc)
			if err == nil {
				fmt.Printf("Pipeline: saved %s\n", shortID(rec))
			}
		case 'p':
			err = needRecording(rec)
			if err == nil {
				err = playAndWait(ctx, svc, rec, false)
			}
		case 's':
			err = needRecording(rec)
			if err == nil {
				err = playAndWait(ctx, svc, rec, true)
			}
		}
		if err != nil {
			return fmt.Errorf("pipeline step '%c' failed: %w", step, err)
		}
	}

	fmt.Println("Pipeline: completed")
	return nil
}

func needRecording(rec recording.Recording) error {
	if rec.Address == "" {
		return fmt.Errorf("no recording to play, start the pipeline with 'r' or pass an id")
	}
	return nil
}
