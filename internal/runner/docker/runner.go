// Package docker implements the training runner on the host Docker daemon.
// Each training task runs one container of a configured trainer image with
// the blob directory bind-mounted, so the trainer reads the dataset and
// writes the artifact in place.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"

	"mltrain/internal/job"
)

// containerDataPath is where the blob directory appears inside the trainer.
const containerDataPath = "/data"

// Config holds configuration for the docker runner.
type Config struct {
	Image   string // trainer image, required
	DataDir string // host directory backing the blob store, required
}

// Runner implements job.Runner using Docker.
type Runner struct {
	client  *client.Client
	image   string
	dataDir string
}

// NewRunner creates a docker runner from the environment's daemon settings.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("trainer image is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Runner{
		client:  dockerClient,
		image:   cfg.Image,
		dataDir: cfg.DataDir,
	}, nil
}

// Ping checks if the Docker daemon is reachable and responsive.
func (r *Runner) Ping(ctx context.Context) error {
	_, err := r.client.Ping(ctx)
	return err
}

// Close releases the Docker client.
func (r *Runner) Close() error {
	return r.client.Close()
}

// Train runs the trainer image for one job and blocks until it exits.
// Progress is read from the container's log stream: any line of the form
// "progress=NN" updates the callback. A non-zero exit is a terminal error
// for the job.
func (r *Runner) Train(ctx context.Context, spec job.TrainSpec, progress job.ProgressFunc) error {
	logger := slog.With("jobId", spec.JobID, "image", r.image)

	if err := r.pullImageIfNeeded(ctx, r.image); err != nil {
		return fmt.Errorf("failed to pull trainer image: %w", err)
	}

	containerID, err := r.createContainer(ctx, spec)
	if err != nil {
		return fmt.Errorf("failed to create trainer container: %w", err)
	}
	defer r.removeContainer(containerID)

	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start trainer container: %w", err)
	}
	logger.Info("Trainer container started", "containerId", containerID[:12])

	// Follow logs for progress lines while waiting for exit
	logCtx, logCancel := context.WithCancel(ctx)
	logDone := make(chan struct{})
	go func() {
		defer close(logDone)
		r.streamProgress(logCtx, logger, containerID, progress)
	}()

	exitCode, waitErr := r.waitForExit(ctx, containerID)
	logCancel()
	<-logDone

	if waitErr != nil {
		return fmt.Errorf("training aborted: %w", waitErr)
	}
	if exitCode != 0 {
		return fmt.Errorf("training exited with code %d", exitCode)
	}

	logger.Info("Trainer container finished")
	return nil
}

func (r *Runner) createContainer(ctx context.Context, spec job.TrainSpec) (string, error) {
	definitionJSON, err := json.Marshal(spec.Definition)
	if err != nil {
		return "", fmt.Errorf("failed to marshal definition: %w", err)
	}
	datasetJSON, err := json.Marshal(spec.Dataset)
	if err != nil {
		return "", fmt.Errorf("failed to marshal dataset: %w", err)
	}

	env := []string{
		fmt.Sprintf("JOB_ID=%s", spec.JobID),
		fmt.Sprintf("MODEL_JSON=%s", definitionJSON),
		fmt.Sprintf("DATASET_JSON=%s", datasetJSON),
		fmt.Sprintf("DATASET_FILE=%s", path.Join(containerDataPath, spec.DatasetRef)),
		fmt.Sprintf("ARTIFACT_FILE=%s", path.Join(containerDataPath, spec.ArtifactRef)),
	}

	containerConfig := &container.Config{
		Image: r.image,
		Env:   env,
		Labels: map[string]string{
			"job.id":     spec.JobID,
			"managed-by": "trainer-service",
		},
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: r.dataDir,
				Target: containerDataPath,
			},
		},
	}

	containerName := fmt.Sprintf("train-%s", spec.JobID)
	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return "", err
	}

	return resp.ID, nil
}

// streamProgress follows the container's multiplexed log stream and feeds
// progress lines to the callback.
func (r *Runner) streamProgress(ctx context.Context, logger *slog.Logger, containerID string, progress job.ProgressFunc) {
	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		logger.Error("Failed to get container logs", "error", err)
		return
	}
	defer logs.Close()

	header := make([]byte, 8)

	for ctx.Err() == nil {
		if _, err := io.ReadFull(logs, header); err != nil {
			if err != io.EOF && ctx.Err() == nil {
				logger.Debug("Log stream ended", "error", err)
			}
			return
		}

		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		if size == 0 {
			continue
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(logs, payload); err != nil {
			logger.Debug("Failed to read log payload", "error", err)
			return
		}

		for _, line := range splitLines(string(payload)) {
			if percent, ok := parseProgress(line); ok && progress != nil {
				progress(percent)
			}
		}
	}
}

func (r *Runner) waitForExit(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := r.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("%s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	}
}

func (r *Runner) pullImageIfNeeded(ctx context.Context, imageName string) error {
	_, err := r.client.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}

	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// removeContainer stops and removes a trainer container. Runs on a fresh
// context so cleanup still happens when the training context is cancelled.
func (r *Runner) removeContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopTimeout := 10
	_ = r.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &stopTimeout})
	_ = r.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// parseProgress extracts a percentage from a "progress=NN" log line.
func parseProgress(line string) (int, bool) {
	for _, field := range strings.Fields(line) {
		value, ok := strings.CutPrefix(field, "progress=")
		if !ok {
			continue
		}
		percent, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
		if err != nil {
			return 0, false
		}
		return percent, true
	}
	return 0, false
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Verify Runner implements job.Runner
var _ job.Runner = (*Runner)(nil)
