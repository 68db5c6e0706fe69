package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"github.com/google/uuid"

	"gameshelf/internal/catalog"
	"gameshelf/internal/daemon"
	"gameshelf/internal/logging"
	"gameshelf/internal/scan"
	"gameshelf/internal/services"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

// request derives a per-call context tagged with a correlation id.
func (s *service) request() (context.Context, *slog.Logger) {
	ctx := services.WithRequestID(s.ctx, uuid.NewString())
	return ctx, logging.WithContext(ctx, s.logger)
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	ctx, _ := s.request()
	resp.Status = s.daemon.Status(ctx)
	return nil
}

func (s *service) TriggerScan(req TriggerScanRequest, resp *TriggerScanResponse) error {
	ctx, logger := s.request()
	kind, err := scan.ParseKind(req.Kind)
	if err != nil {
		return err
	}
	result, err := s.daemon.TriggerScan(ctx, kind, req.UnitIDs)
	if err != nil {
		return err
	}
	resp.Started = result.Started
	resp.Skipped = result.Skipped
	logger.Info("scan requested via IPC",
		logging.String(logging.FieldScanKind, string(kind)),
		logging.Int("started", len(result.Started)),
		logging.Int("skipped", len(result.Skipped)),
		logging.String(logging.FieldEventType, "ipc_scan_triggered"))
	return nil
}

func (s *service) ScanProgress(req ScanProgressRequest, resp *ScanProgressResponse) error {
	for _, p := range s.daemon.ScanProgress() {
		if req.UnitID == 0 || p.UnitID == req.UnitID {
			resp.Progress = append(resp.Progress, p)
		}
	}
	return nil
}

func (s *service) ListUnits(_ ListUnitsRequest, resp *ListUnitsResponse) error {
	ctx, _ := s.request()
	units, err := s.daemon.ListUnits(ctx)
	if err != nil {
		return err
	}
	resp.Units = make([]catalog.Unit, 0, len(units))
	for _, unit := range units {
		resp.Units = append(resp.Units, *unit)
	}
	return nil
}

func (s *service) CreateUnit(req CreateUnitRequest, resp *CreateUnitResponse) error {
	ctx, logger := s.request()
	unit, err := s.daemon.CreateUnit(ctx, req.Name, req.Directories)
	if err != nil {
		return err
	}
	resp.Unit = *unit
	logger.Info("unit created via IPC",
		logging.Int64(logging.FieldUnitID, unit.ID),
		logging.String(logging.FieldEventType, "ipc_unit_created"))
	return nil
}

func (s *service) DeleteUnit(req DeleteUnitRequest, resp *DeleteUnitResponse) error {
	ctx, logger := s.request()
	if err := s.daemon.DeleteUnit(ctx, req.ID); err != nil {
		return err
	}
	resp.Deleted = true
	logger.Info("unit deleted via IPC",
		logging.Int64(logging.FieldUnitID, req.ID),
		logging.String(logging.FieldEventType, "ipc_unit_deleted"))
	return nil
}

func (s *service) ListEntries(req ListEntriesRequest, resp *ListEntriesResponse) error {
	ctx, _ := s.request()
	entries, err := s.daemon.ListEntries(ctx, req.UnitID, req.Query, req.Limit)
	if err != nil {
		return err
	}
	resp.Entries = make([]catalog.Entry, 0, len(entries))
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, *entry)
	}
	return nil
}

func (s *service) Search(req SearchRequest, resp *SearchResponse) error {
	ctx, _ := s.request()
	candidates, err := s.daemon.Search(ctx, req.Term, req.Limit)
	if err != nil {
		return err
	}
	resp.Candidates = candidates
	return nil
}

func (s *service) Match(req MatchRequest, resp *MatchResponse) error {
	ctx, _ := s.request()
	entry, err := s.daemon.Match(ctx, daemon.MatchRequest{
		EntryID:     req.EntryID,
		UnitID:      req.UnitID,
		Path:        req.Path,
		ExternalIDs: req.ExternalIDs,
	})
	if err != nil {
		return err
	}
	resp.Entry = *entry
	return nil
}

func (s *service) RemoveEntry(req RemoveEntryRequest, resp *RemoveEntryResponse) error {
	ctx, _ := s.request()
	unit, err := s.daemon.RemoveEntry(ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Unit = *unit
	return nil
}

func (s *service) SetWatcherEnabled(req SetWatcherRequest, resp *SetWatcherResponse) error {
	ctx, logger := s.request()
	if err := s.daemon.SetWatcherEnabled(ctx, req.Enabled); err != nil {
		return err
	}
	resp.Enabled = s.daemon.Status(ctx).WatcherEnabled
	logger.Info("watcher toggled via IPC",
		logging.Bool("enabled", resp.Enabled),
		logging.String(logging.FieldEventType, "ipc_watcher_toggled"))
	return nil
}
