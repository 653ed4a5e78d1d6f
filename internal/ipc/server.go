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
	"strings"
	"sync"
	"time"

	"gebr/internal/daemon"
	"gebr/internal/flow"
	"gebr/internal/logging"
	"gebr/internal/notify"
	"gebr/internal/scheduler"
	"gebr/internal/services"
)

const (
	maxPollWait  = 30 * time.Second
	maxLogWait   = 30 * time.Second
	pollBatch    = 256
	releaseGrace = 2 * time.Second
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path     string
	daemon   *daemon.Daemon
	logger   *slog.Logger
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:     path,
		daemon:   d,
		logger:   logging.NewComponentLogger(logger, "ipc"),
		listener: listener,
		ctx:      serverCtx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
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
					logging.Event("ipc_accept_failed"),
					logging.Impact("IPC clients may fail to connect"),
					logging.Hint("Check socket permissions and restart the daemon if needed"))
				continue
			}
			if !s.track(conn) {
				_ = conn.Close()
				return
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.untrack(c)
				s.serveConn(c)
			}(conn)
		}
	}()
}

func (s *Server) serveConn(conn net.Conn) {
	svc := &service{daemon: s.daemon, logger: s.logger, ctx: s.ctx, clients: make(map[string]struct{})}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		s.logger.Error("register rpc service", logging.Error(err))
		_ = conn.Close()
		return
	}
	rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	svc.release()
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Close stops the server, drops open connections and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.Event("ipc_socket_cleanup_failed"),
			logging.Impact("stale IPC socket may block future starts"),
			logging.Hint("Remove the socket file manually or rerun gebr daemon stop"))
	}
}

// service is the RPC receiver for one connection.
type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context

	mu      sync.Mutex
	clients map[string]struct{}
}

func (s *service) sched() *scheduler.Scheduler {
	return s.daemon.Scheduler()
}

func (s *service) Run(req RunRequest, resp *JobResponse) error {
	doc, err := flow.Parse([]byte(req.Flow))
	if err != nil {
		return err
	}
	hostname := strings.TrimSpace(req.Hostname)
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	rec, err := s.sched().Submit(s.ctx, scheduler.RunRequest{
		Queue:    req.Queue,
		Account:  req.Account,
		Flow:     doc,
		NProcs:   req.NProcs,
		RunID:    req.RunID,
		Hostname: hostname,
		Display:  req.Display,
	})
	if err != nil {
		return err
	}
	resp.Job = rec
	s.logger.Debug("job submitted via IPC",
		logging.String(logging.FieldJobID, rec.ID),
		logging.String(logging.FieldQueue, rec.Queue))
	return nil
}

func (s *service) List(_ ListRequest, resp *ListResponse) error {
	jobs, err := s.sched().List(s.ctx)
	if err != nil {
		return err
	}
	resp.Jobs = jobs
	return nil
}

func (s *service) Show(req JobRequest, resp *JobResponse) error {
	rec, err := s.sched().Get(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Job = rec
	return nil
}

func (s *service) Clear(req JobRequest, resp *ActionResponse) error {
	if err := s.sched().Clear(s.ctx, req.ID); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) End(req JobRequest, resp *ActionResponse) error {
	if err := s.sched().End(s.ctx, req.ID); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) Kill(req JobRequest, resp *ActionResponse) error {
	if err := s.sched().Kill(s.ctx, req.ID); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.APIStatus(s.ctx)
	resp.APIAddress = s.daemon.Status(s.ctx).APIAddress
	return nil
}

func (s *service) Queues(_ QueuesRequest, resp *QueuesResponse) error {
	queues, err := s.sched().Queues(s.ctx)
	if err != nil {
		return err
	}
	resp.Queues = queues
	return nil
}

func (s *service) RenameQueue(req RenameQueueRequest, resp *ActionResponse) error {
	if err := s.sched().RenameQueue(s.ctx, req.From, req.To); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) Subscribe(req SubscribeRequest, resp *SubscribeResponse) error {
	hostname := strings.TrimSpace(req.Hostname)
	if hostname == "" {
		hostname = "localhost"
	}
	client, err := s.sched().Subscribe(s.ctx, hostname)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.clients[client.ID] = struct{}{}
	s.mu.Unlock()
	resp.ClientID = client.ID
	return nil
}

func (s *service) Poll(req PollRequest, resp *PollResponse) error {
	if !s.owns(req.ClientID) {
		return services.Wrap(services.ErrNotFound, "ipc", "poll", "client "+req.ClientID+" not subscribed on this connection", nil)
	}
	client, ok := s.sched().Hub().Get(req.ClientID)
	if !ok {
		resp.Closed = true
		return nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = pollBatch
	}
	if req.WaitMillis <= 0 {
		resp.Messages = client.TryDrain(limit)
		return nil
	}
	wait := min(time.Duration(req.WaitMillis)*time.Millisecond, maxPollWait)
	ctx, cancel := context.WithTimeout(s.ctx, wait)
	defer cancel()
	msgs, err := client.Drain(ctx, limit)
	switch {
	case errors.Is(err, notify.ErrClientClosed):
		resp.Closed = true
	case errors.Is(err, context.DeadlineExceeded):
	case errors.Is(err, context.Canceled):
		resp.Closed = true
	case err != nil:
		return err
	}
	resp.Messages = msgs
	return nil
}

func (s *service) Unsubscribe(req UnsubscribeRequest, resp *ActionResponse) error {
	if !s.owns(req.ClientID) {
		return services.Wrap(services.ErrNotFound, "ipc", "unsubscribe", "client "+req.ClientID+" not subscribed on this connection", nil)
	}
	if err := s.sched().Unsubscribe(s.ctx, req.ClientID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.clients, req.ClientID)
	s.mu.Unlock()
	resp.OK = true
	return nil
}

func (s *service) Logs(req LogsRequest, resp *LogsResponse) error {
	hub := s.daemon.LogStream()
	if hub == nil {
		return nil
	}
	if req.Tail {
		resp.Events, resp.Next = hub.Tail(req.Limit)
		return nil
	}
	ctx := s.ctx
	if req.Follow {
		wait := time.Duration(req.WaitMillis) * time.Millisecond
		if wait <= 0 {
			wait = time.Second
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, min(wait, maxLogWait))
		defer cancel()
	}
	events, next, err := hub.Fetch(ctx, req.Since, req.Limit, req.Follow)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	resp.Events = events
	resp.Next = next
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("daemon stop requested via IPC",
		logging.Event("daemon_stop_requested"))
	s.daemon.RequestStop()
	resp.Stopping = true
	return nil
}

func (s *service) owns(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.clients[clientID]
	return ok
}

// release unregisters every client subscribed through this connection.
func (s *service) release() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	s.clients = make(map[string]struct{})
	s.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), releaseGrace)
	defer cancel()
	for _, id := range ids {
		if err := s.sched().Unsubscribe(ctx, id); err != nil && !errors.Is(err, scheduler.ErrStopped) {
			s.logger.Debug("release client failed",
				logging.String("client_id", id),
				logging.Error(err))
		}
	}
}
