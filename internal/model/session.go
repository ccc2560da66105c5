package model

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Session is the ONNX Runtime backed Handle. Input and output tensors are
// allocated once and shared across calls, so Predict holds mu for the whole
// copy-run-read cycle.
type Session struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

type OpenOptions struct {
	MetadataPath string
	// SharedLibrary points at libonnxruntime; empty uses the platform default.
	SharedLibrary string
}

// Open loads the model artifact at modelPath. It blocks for the whole
// deserialisation and is meant to run on the loader goroutine.
func Open(ctx context.Context, modelPath string, opts OpenOptions) (*Session, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model artifact: %w", err)
	}

	metadata, err := LoadMetadata(opts.MetadataPath)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !ort.IsInitialized() {
		if opts.SharedLibrary != "" {
			ort.SetSharedLibraryPath(opts.SharedLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	if metadata.InputName == "" || metadata.OutputName == "" {
		if err := resolveNames(modelPath, &metadata); err != nil {
			ort.DestroyEnvironment()
			return nil, err
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{
		session:      session,
		metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// resolveNames fills in the first input and output names declared by the
// model when the sidecar does not name them.
func resolveNames(modelPath string, metadata *Metadata) error {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return fmt.Errorf("failed to inspect model: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return fmt.Errorf("model declares %d inputs and %d outputs", len(inputs), len(outputs))
	}
	if metadata.InputName == "" {
		metadata.InputName = inputs[0].Name
	}
	if metadata.OutputName == "" {
		metadata.OutputName = outputs[0].Name
	}
	return nil
}

func (s *Session) Metadata() Metadata {
	return s.metadata
}

func (s *Session) Predict(inputData []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, fmt.Errorf("session closed")
	}

	dst := s.inputTensor.GetData()
	if len(inputData) != len(dst) {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrShapeMismatch, len(dst), len(inputData))
	}
	copy(dst, inputData)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := s.outputTensor.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	s.session.Destroy()
	s.session = nil
	return ort.DestroyEnvironment()
}
