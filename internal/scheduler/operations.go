package scheduler

import (
	"context"
	"fmt"
	"strings"

	"gebr/internal/assemble"
	"gebr/internal/job"
	"gebr/internal/logging"
	"gebr/internal/notify"
	"gebr/internal/queue"
	"gebr/internal/services"
)

// Submit creates a job for req, assembles its command line and either starts
// it or queues it behind the running job of its queue. Jobs whose assembly
// failed are reported as failed and never queued.
func (s *Scheduler) Submit(ctx context.Context, req RunRequest) (job.Record, error) {
	var rec job.Record
	err := s.call(ctx, func() {
		rec = s.submit(req)
	})
	return rec, err
}

func (s *Scheduler) submit(req RunRequest) job.Record {
	queueName := strings.TrimSpace(req.Queue)
	if queueName == "" {
		queueName = s.cfg.DefaultQueue
	}
	j := job.New(job.Spec{
		ID:       s.newID(),
		Queue:    queueName,
		Account:  req.Account,
		Hostname: req.Hostname,
		Display:  req.Display,
		RunID:    req.RunID,
		NProcs:   req.NProcs,
		Flow:     req.Flow,
	})
	j.SetClock(s.now)

	result := assemble.Assemble(req.Flow, s.mpi, j.NProcs)
	j.CmdLine = result.CmdLine
	j.ReadsStdin = result.ReadsStdin
	j.CriticalError = result.Critical
	for _, issue := range result.Issues {
		s.addIssue(j, issue)
	}

	e := &entry{job: j, queue: queueName}
	s.jobs[j.ID] = e
	s.order = append(s.order, j.ID)
	s.observer.JobSubmitted(queueName)

	logger := s.jobLogger(j)
	logger.Info("job submitted",
		logging.String(logging.FieldRunID, j.RunID),
		logging.String("hostname", j.Hostname),
		logging.Int("issues", len(result.Issues)),
		logging.Event("job_submitted"),
	)

	if j.CriticalError {
		if _, err := j.SetStatus(context.Background(), job.StatusFailed); err == nil {
			s.observer.JobStatus(job.StatusFailed)
		}
		s.broadcastJob(j)
		logging.WarnWithContext(logger, "job rejected by assembly", "job_assembly_failed",
			logging.Any("issues", j.Issues()),
			logging.Hint("fix the flow and submit it again"),
			logging.Impact("job will not run"),
		)
		return j.Record()
	}

	s.broadcastJob(j)

	if s.queues.Busy(queueName) {
		s.queues.Enqueue(queueName, j)
		s.transition(e, job.StatusQueued, "")
		return j.Record()
	}
	if err := s.queues.Activate(queueName, j); err != nil {
		logging.ErrorWithContext(logger, "queue activation failed", "queue_activate_failed", logging.Error(err))
		s.transition(e, job.StatusFailed, err.Error())
		return j.Record()
	}
	s.start(e)
	return j.Record()
}

// List returns every job record in submission order.
func (s *Scheduler) List(ctx context.Context) ([]job.Record, error) {
	var out []job.Record
	err := s.call(ctx, func() {
		out = make([]job.Record, 0, len(s.order))
		for _, id := range s.order {
			out = append(out, s.jobs[id].job.Record())
		}
	})
	return out, err
}

// Get returns one job record.
func (s *Scheduler) Get(ctx context.Context, id string) (job.Record, error) {
	var (
		rec    job.Record
		lookup error
	)
	err := s.call(ctx, func() {
		e, ok := s.jobs[id]
		if !ok {
			lookup = notFound(id)
			return
		}
		rec = e.job.Record()
	})
	if err != nil {
		return job.Record{}, err
	}
	return rec, lookup
}

// Clear forgets a job that reached a terminal status. A queued job is
// canceled instead: one waiting in its queue is dropped at once, one already
// handed to the batch server is killed there and ends canceled.
func (s *Scheduler) Clear(ctx context.Context, id string) error {
	var result error
	err := s.call(ctx, func() {
		e, ok := s.jobs[id]
		if !ok {
			result = notFound(id)
			return
		}
		if e.job.Status() == job.StatusQueued {
			if !s.cancelPending(e) {
				s.stop(e, true)
			}
			s.jobLogger(e.job).Info("queued job canceled by clear", logging.Event("job_clear_canceled"))
			return
		}
		if !e.job.Status().Terminal() {
			result = services.Wrap(services.ErrValidation, "scheduler", "clear",
				fmt.Sprintf("job %s is %s", id, e.job.Status()), nil)
			return
		}
		s.forget(id)
		s.jobLogger(e.job).Info("job cleared", logging.Event("job_cleared"))
	})
	if err != nil {
		return err
	}
	return result
}

// End asks a job to terminate gracefully.
func (s *Scheduler) End(ctx context.Context, id string) error {
	return s.stopJob(ctx, id, false)
}

// Kill terminates a job forcibly.
func (s *Scheduler) Kill(ctx context.Context, id string) error {
	return s.stopJob(ctx, id, true)
}

func (s *Scheduler) stopJob(ctx context.Context, id string, force bool) error {
	var result error
	err := s.call(ctx, func() {
		e, ok := s.jobs[id]
		if !ok {
			result = notFound(id)
			return
		}
		s.stop(e, force)
	})
	if err != nil {
		return err
	}
	return result
}

// Queues summarizes the queue registry.
func (s *Scheduler) Queues(ctx context.Context) ([]queue.Info, error) {
	var out []queue.Info
	err := s.call(ctx, func() {
		out = s.queues.Snapshot()
	})
	return out, err
}

// RenameQueue moves a queue to a new name. Every job in it is relabeled and
// announced to clients as requeued.
func (s *Scheduler) RenameQueue(ctx context.Context, oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return services.Wrap(services.ErrValidation, "scheduler", "rename queue", "new name is empty", nil)
	}
	var result error
	err := s.call(ctx, func() {
		moved, err := s.queues.Rename(oldName, newName)
		if err != nil {
			result = services.Wrap(services.ErrValidation, "scheduler", "rename queue", "", err)
			return
		}
		for _, j := range moved {
			s.jobs[j.ID].queue = newName
			s.notifyRequeued(j)
		}
		s.logger.Info("queue renamed",
			logging.String("from", oldName),
			logging.String("to", newName),
			logging.Int("jobs", len(moved)),
			logging.Event("queue_renamed"),
		)
	})
	if err != nil {
		return err
	}
	return result
}

// Status summarizes the scheduler.
func (s *Scheduler) Status(ctx context.Context) (Summary, error) {
	var out Summary
	err := s.call(ctx, func() {
		out = Summary{
			Mode:    ModeLocal,
			Jobs:    len(s.jobs),
			Clients: s.hub.Count(),
			Queues:  len(s.queues.Names()),
			Counts:  make(map[string]int),
		}
		if s.useBatch {
			out.Mode = ModeBatch
		}
		for _, e := range s.jobs {
			out.Counts[e.job.Status().Token()]++
		}
	})
	return out, err
}

// Subscribe registers a client. The client first receives one job record
// for every known job, then live notifications.
func (s *Scheduler) Subscribe(ctx context.Context, hostname string) (*notify.Client, error) {
	client := notify.NewClient(s.newID(), hostname)
	err := s.call(ctx, func() {
		for _, id := range s.order {
			client.Send(s.jobMessage(s.jobs[id].job))
		}
		s.hub.Register(client)
		s.logger.Info("client subscribed",
			logging.String("client_id", client.ID),
			logging.String("hostname", hostname),
			logging.Event("client_subscribed"),
		)
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Unsubscribe removes a client.
func (s *Scheduler) Unsubscribe(ctx context.Context, clientID string) error {
	var result error
	err := s.call(ctx, func() {
		if !s.hub.Unregister(clientID) {
			result = services.Wrap(services.ErrNotFound, "scheduler", "unsubscribe", fmt.Sprintf("client %q", clientID), nil)
		}
	})
	if err != nil {
		return err
	}
	return result
}
