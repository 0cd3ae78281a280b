package main

import (
	"context"
	"fmt"

	"github.com/todosync/todosync/internal/netmon"
	"github.com/todosync/todosync/internal/queue"
	"github.com/todosync/todosync/internal/store"
	"github.com/todosync/todosync/internal/syncer"
)

// App wires the stores, queue, monitor, and syncer together for the
// commands. The remote store is opened lazily: purely local commands
// work without a configured remote.
type App struct {
	local   *store.Local
	queue   *queue.Queue
	monitor *netmon.Monitor

	remote *store.Remote
	sync   *syncer.Syncer
}

// NewApp opens the local pieces.
func NewApp() (*App, error) {
	local, err := store.OpenLocal(cfg.LocalDBPath(), &store.LocalConfig{
		MaxTasks: cfg.Local.MaxTasks,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	q, err := queue.New(&queue.Config{
		JournalPath: cfg.QueueJournalPath(),
		MaxSize:     cfg.Queue.MaxSize,
		MaxRetries:  cfg.Queue.MaxRetries,
		RetryDelay:  cfg.Queue.RetryDelay,
		Logger:      logger,
	})
	if err != nil {
		_ = local.Close()
		return nil, fmt.Errorf("failed to open offline queue: %w", err)
	}

	monitor := netmon.New(netmon.NewProbeSource(netmon.ProbeConfig{
		URL:      cfg.Network.ProbeURL,
		Interval: cfg.Network.ProbeInterval,
	}), logger)

	return &App{local: local, queue: q, monitor: monitor}, nil
}

// Close releases everything the app opened.
func (a *App) Close() {
	a.monitor.Destroy()
	if a.remote != nil {
		_ = a.remote.Close()
	}
	_ = a.queue.Close()
	_ = a.local.Close()
}

// RequireUser returns the configured user id or an actionable error.
func (a *App) RequireUser() (string, error) {
	if cfg.UserID == "" {
		return "", fmt.Errorf("no user configured: set user_id in %s or pass --user", configDisplayPath())
	}
	return cfg.UserID, nil
}

func configDisplayPath() string {
	if configPath != "" {
		return configPath
	}
	return "the config file"
}

// Remote opens the remote store on first use.
func (a *App) Remote() (*store.Remote, error) {
	if a.remote != nil {
		return a.remote, nil
	}
	if cfg.Remote.URL == "" {
		return nil, fmt.Errorf("no remote configured: set remote.url in the config file")
	}

	remote, err := store.OpenRemote(cfg.RemoteDSN(), &store.RemoteConfig{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}
	a.remote = remote
	return remote, nil
}

// Syncer builds the orchestrator on first use and registers the queue
// processor so queued actions drain through the same remote store.
func (a *App) Syncer() (*syncer.Syncer, error) {
	if a.sync != nil {
		return a.sync, nil
	}

	remote, err := a.Remote()
	if err != nil {
		return nil, err
	}

	a.sync = syncer.New(a.local, remote, cfg.Sync.ConfidenceThreshold, logger)
	a.queue.SetProcessor(a.processAction)
	return a.sync, nil
}

// processAction applies one queued action against the remote store.
func (a *App) processAction(ctx context.Context, act queue.Action) error {
	remote, err := a.Remote()
	if err != nil {
		return err
	}

	switch act.Type {
	case queue.ActionCreate:
		_, err := remote.Create(ctx, act.UserID, act.Create.Task)
		return err

	case queue.ActionUpdate:
		ok, err := remote.Update(ctx, act.UserID, act.Update.TaskID, act.Update.Patch())
		if err != nil {
			return err
		}
		if !ok {
			// The task is gone remotely; nothing left to apply.
			logger.Printf("Dropping update for missing remote task %s", act.Update.TaskID)
		}
		return nil

	case queue.ActionDelete:
		if _, err := remote.Delete(ctx, act.UserID, act.Delete.TaskID); err != nil {
			return err
		}
		return nil

	case queue.ActionSync:
		s, err := a.Syncer()
		if err != nil {
			return err
		}
		result, err := s.StartSync(ctx, act.UserID, syncer.Options{ForceUpload: act.Sync.ForceUpload})
		if err != nil {
			return err
		}
		if !result.Success && !result.Cancelled && len(result.Conflicts) == 0 {
			return fmt.Errorf("sync failed: %s", result.Error)
		}
		return nil

	default:
		return fmt.Errorf("unknown action type %q", act.Type)
	}
}
