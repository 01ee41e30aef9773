package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/richinex/biotools/model"
	"github.com/richinex/biotools/parse"
	"github.com/richinex/biotools/sequence"
	"github.com/richinex/biotools/tools"
)

// Fixed locations inside the classifier's home directory.
const (
	spiderScript = "spider.py"
	spiderInput  = "input/seq.fasta"
	spiderOutput = "output/predict_result.csv"
)

// Predict classifies one protein sequence as druggable or not.
func (s *Service) Predict(ctx context.Context, raw string) OperationOutcome {
	return s.run(ctx, "predict", nil, func(ctx context.Context, clock *stopwatch) (interface{}, string, error) {
		record, err := sequence.Validate(raw, sequence.Standard)
		if err != nil {
			return nil, "", err
		}

		release, err := s.acquireSpider(ctx)
		if err != nil {
			return nil, "", err
		}
		defer release()

		clock.start()
		result, err := s.spider(ctx, record)
		if err != nil {
			return nil, "", err
		}
		return result, "Prediction completed successfully", nil
	})
}

func (s *Service) acquireSpider(ctx context.Context) (func(), error) {
	select {
	case s.spiderSem <- struct{}{}:
		return func() { <-s.spiderSem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for classifier: %w", ctx.Err())
	}
}

// spider stages the input file, runs the classifier in its home directory
// and reads the single-row CSV it leaves behind. Both files are removed
// afterwards.
func (s *Service) spider(ctx context.Context, record model.SequenceRecord) (model.PredictionResult, error) {
	home := s.cfg.SpiderHome
	inputPath := filepath.Join(home, filepath.FromSlash(spiderInput))
	outputPath := filepath.Join(home, filepath.FromSlash(spiderOutput))

	for _, dir := range []string{filepath.Dir(inputPath), filepath.Dir(outputPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return model.PredictionResult{}, &tools.EnvironmentError{Tool: tools.ToolSpider, Err: err}
		}
	}
	// A stale result from an earlier crash must not be mistaken for ours.
	os.Remove(outputPath)
	if err := os.WriteFile(inputPath, []byte(record.FASTA("sequence")), 0644); err != nil {
		return model.PredictionResult{}, &tools.EnvironmentError{Tool: tools.ToolSpider, Err: err}
	}
	defer os.Remove(inputPath)
	defer os.Remove(outputPath)

	res, err := s.invoke(ctx, tools.Invocation{
		Tool: tools.ToolSpider,
		Args: []string{spiderScript},
		Dir:  home,
	})
	if err != nil {
		return model.PredictionResult{}, err
	}

	raw, err := os.ReadFile(outputPath)
	if errors.Is(err, os.ErrNotExist) {
		return model.PredictionResult{}, &tools.ExecutionError{
			Tool:     tools.ToolSpider,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Reason:   "did not generate output file",
		}
	}
	if err != nil {
		return model.PredictionResult{}, fmt.Errorf("failed to read classifier output: %w", err)
	}

	result, err := parse.Prediction(string(raw))
	if err != nil {
		s.archive(ctx, tools.ToolSpider, "prediction", string(raw))
		return model.PredictionResult{}, err
	}
	return result, nil
}
