// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HERA-Team/librarian-sub000/asynctransfer"
	"github.com/HERA-Team/librarian-sub000/auth"
	"github.com/HERA-Team/librarian-sub000/config"
	"github.com/HERA-Team/librarian-sub000/journal"
	"github.com/HERA-Team/librarian-sub000/metadb"
	"github.com/HERA-Team/librarian-sub000/peer"
	"github.com/HERA-Team/librarian-sub000/scheduler"
	"github.com/HERA-Team/librarian-sub000/services"
	"github.com/HERA-Team/librarian-sub000/store"
	"github.com/HERA-Team/librarian-sub000/tasks"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

// prints usage info
func usage() {
	fmt.Fprintf(os.Stderr, "%s: usage:\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "%s <config_file>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "See SPEC_FULL.md (section 2.2) for details on config files.\n")
	os.Exit(1)
}

func enableLogging() {
	logLevel := new(slog.LevelVar)
	if config.Service.Debug {
		logLevel.Set(slog.LevelDebug)
	} else {
		logLevel.Set(slog.LevelInfo)
	}
	handler := slog.NewJSONHandler(os.Stdout,
		&slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Debug logging enabled.")
}

// buildStores constructs a store.Registry from config.Stores.
func buildStores() (*store.Registry, error) {
	stores := make(map[string]store.Store, len(config.Stores))
	for name, cfg := range config.Stores {
		s, err := store.NewFromConfig(name, store.StoreConfig{
			Type: cfg.Type, Root: cfg.Root, TransferManagers: cfg.TransferManagers,
			AsyncTransferManagers: cfg.AsyncTransferManagers,
			Ingestable:            cfg.Ingestable, Enabled: cfg.Enabled,
		})
		if err != nil {
			return nil, fmt.Errorf("building store '%s': %w", name, err)
		}
		stores[name] = s
	}
	return store.NewRegistry(stores), nil
}

// buildPeers constructs a PeerRegistry, decrypting each configured peer's
// shared credential with authenticator.
func buildPeers(authenticator *auth.Authenticator) (*tasks.PeerRegistry, error) {
	clients := make(map[string]*peer.Client, len(config.Librarians))
	for name, cfg := range config.Librarians {
		if cfg.Authenticator == "" || authenticator == nil {
			slog.Warn("librarian configured without a usable authenticator; skipping", "librarian", name)
			continue
		}
		username, password, err := authenticator.Decrypt(cfg.Authenticator)
		if err != nil {
			return nil, fmt.Errorf("decrypting authenticator for librarian '%s': %w", name, err)
		}
		clients[name] = peer.New(cfg.Url, username, password, 30*time.Second)
	}
	return tasks.NewPeerRegistry(clients), nil
}

// buildScheduler registers the background tasks of spec sections 4.5 and 4.6
// for every configured store and peer, each on the same poll_interval
// heartbeat.
func buildScheduler(deps *tasks.Deps) *scheduler.Scheduler {
	period := time.Duration(config.Service.PollInterval) * time.Second
	softTimeout := period / 2
	s := scheduler.New()

	var storeNames []string
	for name := range config.Stores {
		storeNames = append(storeNames, name)
	}
	for _, name := range storeNames {
		s.Register(tasks.NewCheckIntegrity(deps, name, 30, period, softTimeout))
		s.Register(tasks.NewRollingDeletion(deps, name, 30, 2, true, true, false, period, softTimeout))
	}
	if len(storeNames) > 1 {
		s.Register(tasks.NewCreateLocalClone(deps, storeNames[0], storeNames[1:], 30, 100, true, period, softTimeout))
	}

	for name := range config.Librarians {
		s.Register(tasks.NewSendClone(deps, name, 30, "", 100, period, softTimeout))
	}
	s.Register(tasks.NewReceiveClone(deps, transfer.Allowed, 100, period, softTimeout))
	s.Register(tasks.NewOutgoingTransferHypervisor(deps, 7, period, softTimeout))
	s.Register(tasks.NewIncomingTransferHypervisor(deps, 7, period, softTimeout))
	s.Register(tasks.NewDuplicateRemoteInstanceHypervisor(deps, period, softTimeout))
	s.Register(tasks.NewSendQueueConsumer(deps, period, softTimeout))
	s.Register(tasks.NewSendQueueChecker(deps, period, softTimeout))
	return s
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	configFile := os.Args[1]

	log.Printf("Reading configuration from '%s'...\n", configFile)
	file, err := os.Open(configFile)
	if err != nil {
		log.Panicf("Couldn't open %s: %s\n", configFile, err.Error())
	}
	defer file.Close()
	b, err := io.ReadAll(file)
	if err != nil {
		log.Panicf("Couldn't read configuration data: %s\n", err.Error())
	}
	if err := config.Init(b); err != nil {
		log.Panicf("Couldn't initialize the configuration: %s\n", err.Error())
	}

	enableLogging()

	if err := journal.Init(); err != nil {
		log.Panicf("Couldn't open the diagnostics journal: %s\n", err.Error())
	}
	defer journal.Finalize()

	db, err := metadb.Open(config.Database.Dsn)
	if err != nil {
		log.Panicf("Couldn't open the metadata database: %s\n", err.Error())
	}
	defer db.Close()

	stores, err := buildStores()
	if err != nil {
		log.Panicf("Couldn't build stores: %s\n", err.Error())
	}

	var authenticator *auth.Authenticator
	if config.Service.AuthenticatorKey != "" {
		authenticator, err = auth.NewAuthenticator(config.Service.AuthenticatorKey)
		if err != nil {
			log.Panicf("Couldn't build the peer authenticator: %s\n", err.Error())
		}
	}
	peers, err := buildPeers(authenticator)
	if err != nil {
		log.Panicf("Couldn't build peer clients: %s\n", err.Error())
	}

	deps := &tasks.Deps{
		DB: db, Stores: stores, Peers: peers, Self: config.Service.Name,
		AsyncProviders: map[string]*asynctransfer.Manager{
			"local": asynctransfer.NewLocalManager(&asynctransfer.Local{}),
		},
	}

	authRegistry := auth.NewRegistry(authenticator)
	server := services.NewServer(deps, authRegistry)
	sched := buildScheduler(deps)
	if err := sched.Start(); err != nil {
		log.Panicf("Couldn't start the background scheduler: %s\n", err.Error())
	}

	// intercept the SIGINT, SIGHUP, SIGTERM, and SIGQUIT signals so we can shut
	// down the service gracefully if they are encountered
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	// start the service in a goroutine so it doesn't block
	go func() {
		err = server.Start(config.Service.Port)
		if err != nil { // on error, log the error message and issue a SIGINT
			log.Println(err.Error())
			thisProcess, _ := os.FindProcess(os.Getpid())
			thisProcess.Signal(os.Interrupt)
		}
	}()

	// block till we receive one of the above signals
	<-sigChan

	sched.Stop()

	// create a deadline to wait for
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// wait for connections to close until the deadline elapses
	server.Shutdown(ctx)
	log.Println("Shutting down")
	os.Exit(0)
}
