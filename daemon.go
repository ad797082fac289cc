// Copyright © 2021 Kris Nóva <kris@nivenly.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// ────────────────────────────────────────────────────────────────────────────
//
//  ████████╗██╗    ██╗██╗███╗   ██╗██╗  ██╗
//  ╚══██╔══╝██║    ██║██║████╗  ██║╚██╗██╔╝
//     ██║   ██║ █╗ ██║██║██╔██╗ ██║ ╚███╔╝
//     ██║   ██║███╗██║██║██║╚██╗██║ ██╔██╗
//     ██║   ╚███╔███╔╝██║██║ ╚████║██╔╝ ██╗
//     ╚═╝    ╚══╝╚══╝ ╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝
//
// ────────────────────────────────────────────────────────────────────────────

package relay

import (
	"context"
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/kris-nova/logger"
	"github.com/kris-nova/relay/rtmp"
	"google.golang.org/grpc"
)

const PIDFileMode os.FileMode = 0600

// Daemon runs the RTMP server and its admin service until it is told to stop.
type Daemon struct {
	config *Config
	server *rtmp.Server
	admin  *grpc.Server
	ready  chan struct{}
}

func NewDaemon(config *Config, opts ...rtmp.ServerOption) *Daemon {
	return &Daemon{
		config: config,
		server: rtmp.NewServer(config.RTMP, opts...),
		ready:  make(chan struct{}),
	}
}

func (d *Daemon) Server() *rtmp.Server {
	return d.server
}

// Ready is closed once the PID file is written and both listeners are up.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Run will run the relay until ctx is done, a signal arrives or a listener fails.
func (d *Daemon) Run(ctx context.Context) error {
	pidFile := d.config.Admin.PIDFile
	if Exists(pidFile) {
		return fmt.Errorf("existing PID file %s", pidFile)
	}
	socket := d.config.Admin.Socket
	if Exists(socket) {
		return fmt.Errorf("admin socket exists %s", socket)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.sigHandler(ctx, cancel)

	// Do not handle error. If it cannot be removed just exit and let the user
	// figure out what to do.
	defer os.Remove(pidFile)
	if err := ioutil.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), PIDFileMode); err != nil {
		return fmt.Errorf("unable to write PID file: %v", err)
	}

	adminListener, err := net.Listen("unix", socket)
	if err != nil {
		return fmt.Errorf("unable to open unix domain socket: %v", err)
	}
	defer os.Remove(socket)
	d.admin = grpc.NewServer()
	RegisterAdminServer(d.admin, NewAdminServer(d.server))

	rtmpListener, err := rtmp.Listen(d.config.RTMP.Address, d.config.RTMP.MaxConnections)
	if err != nil {
		adminListener.Close()
		return err
	}

	errs := make(chan error, 2)
	go func() {
		logger.Info("Admin listening: %v", adminListener.Addr())
		if err := d.admin.Serve(adminListener); err != nil {
			errs <- fmt.Errorf("unable to serve admin socket: %v", err)
		}
	}()
	go func() {
		if err := d.server.Serve(ctx, rtmpListener); err != nil {
			errs <- err
		}
	}()
	close(d.ready)

	for name, service := range d.admin.GetServiceInfo() {
		logger.Info("%s %v", name, service.Metadata)
	}
	logger.Always("Relaying on %s", rtmpListener.Addr())

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errs:
		logger.Critical("%v", err)
	}
	logger.Always("Graceful shutdown...")
	cancel()
	d.admin.GracefulStop()
	d.server.Shutdown()
	return err
}

func (d *Daemon) sigHandler(ctx context.Context, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 2)

	// os.Interrupt is ^C
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			logger.Always("Shutting down... %s", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
}

// ReadPID returns the PID a running daemon wrote to pidFile.
func ReadPID(pidFile string) (int, error) {
	pidBytes, err := ioutil.ReadFile(pidFile)
	if err != nil {
		return 0, fmt.Errorf("unable to access PID file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidBytes)))
	if err != nil {
		return 0, fmt.Errorf("unable to parse PID from %s: %v", pidFile, err)
	}
	return pid, nil
}

// Exists will check if a file exists
func Exists(path string) bool {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false
	}
	return true
}
