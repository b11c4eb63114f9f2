// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/open-commander/opencommander/internal/errkind"
)

// DockerDriver implements Driver against a real Docker engine via the
// official client SDK, carried over from the pack's code_nest
// runner-allocator provisioner.
type DockerDriver struct {
	cli *client.Client
}

// NewDockerDriver connects to the Docker engine at host (empty string
// uses the client library's environment-based default, e.g.
// DOCKER_HOST or the local socket).
func NewDockerDriver(host string) (*DockerDriver, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("driver: connect to docker: %w", err)
	}

	if _, err := cli.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("driver: ping docker: %w", err)
	}

	return &DockerDriver{cli: cli}, nil
}

func (d *DockerDriver) Run(ctx context.Context, spec Spec) error {
	env := make([]string, 0, len(spec.Env))
	for key, value := range spec.Env {
		env = append(env, key+"="+value)
	}

	binds := make([]string, 0, len(spec.Mounts))
	for _, mount := range spec.Mounts {
		mode := "rw"
		if mount.ReadOnly {
			mode = "ro"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", mount.Source, mount.Target, mode))
	}

	exposedPorts, portBindings, err := toNatPorts(spec.Ports)
	if err != nil {
		return errkind.Wrap(errkind.InvalidInput, "build port bindings for "+spec.Name, err)
	}

	config := &container.Config{
		Image:        spec.Image,
		Env:          env,
		Cmd:          spec.Args,
		ExposedPorts: exposedPorts,
	}

	hostConfig := &container.HostConfig{
		Binds:        binds,
		ExtraHosts:   spec.ExtraHosts,
		PortBindings: portBindings,
	}

	var networkingConfig *network.NetworkingConfig
	if spec.Network != "" {
		networkingConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {},
			},
		}
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, networkingConfig, nil, spec.Name)
	if err != nil {
		return classifyCreateError(spec.Name, err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return errkind.Wrap(errkind.Other, "start container "+spec.Name, err)
	}

	return nil
}

func (d *DockerDriver) Start(ctx context.Context, name string) error {
	if err := d.cli.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return errkind.Wrap(errkind.Other, "start container "+name, err)
	}
	return nil
}

func (d *DockerDriver) Restart(ctx context.Context, name string) error {
	if err := d.cli.ContainerRestart(ctx, name, container.StopOptions{}); err != nil {
		return errkind.Wrap(errkind.Other, "restart container "+name, err)
	}
	return nil
}

func (d *DockerDriver) Stop(ctx context.Context, name string) error {
	if err := d.cli.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
		if isNoSuchContainer(err) {
			return nil
		}
		return errkind.Wrap(errkind.Other, "stop container "+name, err)
	}
	return nil
}

func (d *DockerDriver) Remove(ctx context.Context, name string) error {
	if err := d.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
		return errkind.Wrap(errkind.Other, "remove container "+name, err)
	}
	return nil
}

func (d *DockerDriver) SafeRemove(ctx context.Context, name string) error {
	err := d.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !isNoSuchContainer(err) {
		return errkind.Wrap(errkind.Other, "safe remove container "+name, err)
	}
	return nil
}

func (d *DockerDriver) IsRunning(ctx context.Context, name string) (*RunningState, error) {
	info, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		if isNoSuchContainer(err) {
			return nil, nil
		}
		return nil, errkind.Wrap(errkind.Other, "inspect container "+name, err)
	}
	return &RunningState{Running: info.State != nil && info.State.Running}, nil
}

func (d *DockerDriver) Exec(ctx context.Context, name string, argv []string) (ExecResult, error) {
	execResp, err := d.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, errkind.Wrap(errkind.Other, "exec create in "+name, err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return ExecResult{}, errkind.Wrap(errkind.Other, "exec attach in "+name, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := io.Copy(&stdout, attach.Reader); err != nil {
		return ExecResult{}, errkind.Wrap(errkind.Other, "exec read output in "+name, err)
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return ExecResult{}, errkind.Wrap(errkind.Other, "exec inspect in "+name, err)
	}

	return ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

func (d *DockerDriver) Pull(ctx context.Context, imageName string) error {
	reader, err := d.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		if isImageMissing(err) {
			return errkind.Wrap(errkind.ImageMissing, "pull image "+imageName, err)
		}
		return errkind.Wrap(errkind.Other, "pull image "+imageName, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

func (d *DockerDriver) EnsureNetwork(ctx context.Context, name string, internalOnly bool) error {
	_, err := d.cli.NetworkInspect(ctx, name, network.InspectOptions{})
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return errkind.Wrap(errkind.Other, "inspect network "+name, err)
	}

	_, err = d.cli.NetworkCreate(ctx, name, network.CreateOptions{Internal: internalOnly})
	if err != nil {
		return errkind.Wrap(errkind.Other, "create network "+name, err)
	}
	return nil
}

// classifyCreateError maps Docker's create-time failures onto the
// driver's error taxonomy: name collisions become Conflict, an
// in-progress layer pull/extract becomes LayerLocked.
func classifyCreateError(name string, err error) error {
	message := err.Error()
	switch {
	case strings.Contains(message, "Conflict") && strings.Contains(message, "already in use"):
		return errkind.Wrap(errkind.Conflict, "create container "+name, err)
	case strings.Contains(message, "layer") && (strings.Contains(message, "locked") || strings.Contains(message, "being pulled")):
		return errkind.Wrap(errkind.LayerLocked, "create container "+name, err)
	case client.IsErrNotFound(err):
		return errkind.Wrap(errkind.ImageMissing, "create container "+name, err)
	default:
		return errkind.Wrap(errkind.Other, "create container "+name, err)
	}
}

func isNoSuchContainer(err error) bool {
	return client.IsErrNotFound(err) || strings.Contains(err.Error(), "No such container")
}

// toNatPorts translates Spec's engine-agnostic port list into the
// nat.PortSet/nat.PortMap shapes the Docker client expects.
func toNatPorts(ports []PortPublish) (nat.PortSet, nat.PortMap, error) {
	if len(ports) == 0 {
		return nil, nil, nil
	}

	exposed := make(nat.PortSet, len(ports))
	bindings := make(nat.PortMap, len(ports))
	for _, p := range ports {
		containerPort, err := nat.NewPort("tcp", fmt.Sprintf("%d", p.ContainerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("port %d: %w", p.ContainerPort, err)
		}
		exposed[containerPort] = struct{}{}

		hostPort := ""
		if p.HostPort != 0 {
			hostPort = fmt.Sprintf("%d", p.HostPort)
		}
		bindings[containerPort] = []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: hostPort}}
	}
	return exposed, bindings, nil
}

func isImageMissing(err error) bool {
	return client.IsErrNotFound(err) || strings.Contains(err.Error(), "not found")
}

var _ Driver = (*DockerDriver)(nil)
