package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

// MLflowStore sends runs to an MLflow tracking server through its REST API.
// Artifacts are uploaded with the mlflow-artifacts proxy endpoint.
type MLflowStore struct {
	baseURL string
	client  *http.Client
}

// NewMLflowStore returns a store for the tracking server at uri.
func NewMLflowStore(uri string, client *http.Client) (*MLflowStore, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.NewValidationError("tracking.uri", "must be an absolute http(s) URL", uri)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &MLflowStore{baseURL: strings.TrimRight(uri, "/"), client: client}, nil
}

// Close is a no-op.
func (s *MLflowStore) Close() error { return nil }

type mlflowKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type mlflowMetric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

type mlflowError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// SaveRun creates the experiment if needed, then the run, logs everything in
// one batch, uploads artifacts and terminates the run.
func (s *MLflowStore) SaveRun(ctx context.Context, rec *Record) error {
	expID, err := s.experimentID(ctx, rec.Experiment)
	if err != nil {
		return err
	}

	var created struct {
		Run struct {
			Info struct {
				RunID string `json:"run_id"`
			} `json:"info"`
		} `json:"run"`
	}
	if err := s.call(ctx, http.MethodPost, "runs/create", map[string]any{
		"experiment_id": expID,
		"run_name":      rec.Name,
		"start_time":    rec.StartTime.UnixMilli(),
		"tags": []mlflowKV{
			{Key: "mlflow.runName", Value: rec.Name},
			{Key: "tabflow.run_id", Value: rec.ID},
		},
	}, &created); err != nil {
		return err
	}
	runID := created.Run.Info.RunID

	params := make([]mlflowKV, 0, len(rec.Params))
	for _, k := range rec.ParamKeys() {
		params = append(params, mlflowKV{Key: k, Value: rec.Params[k]})
	}
	metrics := make([]mlflowMetric, 0, len(rec.Metrics))
	for _, k := range rec.MetricKeys() {
		metrics = append(metrics, mlflowMetric{Key: k, Value: rec.Metrics[k], Timestamp: rec.EndTime.UnixMilli()})
	}
	if err := s.call(ctx, http.MethodPost, "runs/log-batch", map[string]any{
		"run_id":  runID,
		"params":  params,
		"metrics": metrics,
	}, nil); err != nil {
		return err
	}

	for _, a := range rec.Artifacts {
		if err := s.upload(ctx, expID, runID, a); err != nil {
			return err
		}
	}

	return s.call(ctx, http.MethodPost, "runs/update", map[string]any{
		"run_id":   runID,
		"status":   string(rec.Status),
		"end_time": rec.EndTime.UnixMilli(),
	}, nil)
}

func (s *MLflowStore) experimentID(ctx context.Context, name string) (string, error) {
	var found struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	err := s.call(ctx, http.MethodGet, "experiments/get-by-name?experiment_name="+url.QueryEscape(name), nil, &found)
	if err == nil {
		return found.Experiment.ExperimentID, nil
	}
	var apiErr *mlflowAPIError
	if !errors.As(err, &apiErr) || apiErr.Code != "RESOURCE_DOES_NOT_EXIST" {
		return "", err
	}

	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := s.call(ctx, http.MethodPost, "experiments/create", map[string]any{"name": name}, &created); err != nil {
		return "", err
	}
	return created.ExperimentID, nil
}

type mlflowAPIError struct {
	Status  int
	Code    string
	Message string
}

func (e *mlflowAPIError) Error() string {
	return fmt.Sprintf("mlflow API error (status %d): %s: %s", e.Status, e.Code, e.Message)
}

func (s *MLflowStore) call(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/api/2.0/mlflow/"+endpoint, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		var e mlflowError
		_ = json.Unmarshal(data, &e)
		if e.ErrorCode == "" {
			e.Message = string(data)
		}
		return errors.WithStack(&mlflowAPIError{Status: resp.StatusCode, Code: e.ErrorCode, Message: e.Message})
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func (s *MLflowStore) upload(ctx context.Context, expID, runID, local string) error {
	f, err := os.Open(local) // nolint:gosec // paths are produced by the pipeline
	if err != nil {
		return errors.Wrapf(err, "failed to open artifact %s", local)
	}
	defer func() { _ = f.Close() }()

	target := s.baseURL + "/api/2.0/mlflow-artifacts/artifacts/" +
		path.Join(expID, runID, "artifacts", filepath.Base(local))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, f)
	if err != nil {
		return errors.Wrap(err, "failed to create upload request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "artifact upload failed")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.WithStack(&mlflowAPIError{Status: resp.StatusCode, Code: "ARTIFACT_UPLOAD", Message: string(msg)})
	}
	return nil
}
