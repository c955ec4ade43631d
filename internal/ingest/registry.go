package ingest

import (
	"fmt"

	"chronicle/internal/pipeline"
	"chronicle/internal/stages"
)

// ProcessorFor returns the built-in processor for a stage name.
func ProcessorFor(stage string) (pipeline.Processor, error) {
	switch stage {
	case stages.Segment:
		return Segmenter{}, nil
	case stages.Parse:
		return Parser{}, nil
	case stages.Extract:
		return Extractor{}, nil
	case stages.Enrich:
		return Enricher{}, nil
	case stages.Merge:
		return Merger{}, nil
	case stages.Classify:
		return Classifier{}, nil
	default:
		return nil, fmt.Errorf("no processor registered for stage %q", stage)
	}
}
