package ops

import (
	"context"
	"encoding/json"

	"llm-finetune/core/errs"
	"llm-finetune/core/executor"
	"llm-finetune/core/models"
	"llm-finetune/providers/ollama"
)

// Operation is one of the closed set of tagged tool operations. The
// unexported method keeps other packages from adding variants.
type Operation interface {
	Name() string
	isOperation()
}

// LaunchJob starts a fine-tuning run
type LaunchJob struct {
	executor.LaunchRequest
}

// QueryStatus asks for the projected status of one job
type QueryStatus struct {
	JobID string `json:"jobId"`
}

// LoadModel pulls a base model into the local daemon
type LoadModel struct {
	Model string `json:"model"`
}

// ListDatasets lists every uploaded dataset
type ListDatasets struct{}

// Name returns the operation name used on the wire
func (LaunchJob) Name() string { return "launch_job" }

// Name returns the operation name used on the wire
func (QueryStatus) Name() string { return "query_status" }

// Name returns the operation name used on the wire
func (LoadModel) Name() string { return "load_model" }

// Name returns the operation name used on the wire
func (ListDatasets) Name() string { return "list_datasets" }

func (LaunchJob) isOperation()    {}
func (QueryStatus) isOperation()  {}
func (LoadModel) isOperation()    {}
func (ListDatasets) isOperation() {}

// Result is the JSON-serializable answer of an operation
type Result interface{}

// LoadModelResult reports the final status of a pull
type LoadModelResult struct {
	Model  string `json:"model"`
	Status string `json:"status"`
}

// Launcher starts training jobs
type Launcher interface {
	Launch(ctx context.Context, req executor.LaunchRequest) (models.JobLaunch, error)
}

// StatusReader projects the status of a job
type StatusReader interface {
	Get(jobID string) models.JobStatus
}

// ModelPuller pulls models into the inference daemon
type ModelPuller interface {
	Pull(ctx context.Context, model string, fn func(ollama.PullProgress)) error
}

// DatasetLister lists stored datasets
type DatasetLister interface {
	List() []models.Dataset
}

// Dispatcher routes operations to the components that serve them
type Dispatcher struct {
	launcher Launcher
	status   StatusReader
	puller   ModelPuller
	datasets DatasetLister
}

// NewDispatcher creates a dispatcher
func NewDispatcher(launcher Launcher, status StatusReader, puller ModelPuller, datasets DatasetLister) *Dispatcher {
	return &Dispatcher{
		launcher: launcher,
		status:   status,
		puller:   puller,
		datasets: datasets,
	}
}

// Dispatch executes op
func (d *Dispatcher) Dispatch(ctx context.Context, op Operation) (Result, error) {
	switch op := op.(type) {
	case LaunchJob:
		return d.launcher.Launch(ctx, op.LaunchRequest)
	case QueryStatus:
		if op.JobID == "" {
			return nil, errs.Invalid("jobId is required")
		}
		return d.status.Get(op.JobID), nil
	case LoadModel:
		last := ""
		if err := d.puller.Pull(ctx, op.Model, func(p ollama.PullProgress) { last = p.Status }); err != nil {
			return nil, err
		}
		return LoadModelResult{Model: op.Model, Status: last}, nil
	case ListDatasets:
		return d.datasets.List(), nil
	default:
		return nil, errs.Invalid("unsupported operation %T", op)
	}
}

// Decode maps a wire tag and its JSON arguments to a typed operation
func Decode(name string, raw json.RawMessage) (Operation, error) {
	var op Operation
	switch name {
	case "launch_job":
		var v LaunchJob
		if err := unmarshal(raw, &v); err != nil {
			return nil, err
		}
		op = v
	case "query_status":
		var v QueryStatus
		if err := unmarshal(raw, &v); err != nil {
			return nil, err
		}
		op = v
	case "load_model":
		var v LoadModel
		if err := unmarshal(raw, &v); err != nil {
			return nil, err
		}
		op = v
	case "list_datasets":
		op = ListDatasets{}
	default:
		return nil, errs.Invalid("unknown operation %q", name)
	}
	return op, nil
}

func unmarshal(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errs.Invalid("decode arguments: %v", err)
	}
	return nil
}
