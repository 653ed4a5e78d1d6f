package scheduler

import (
	"context"
	"errors"
	"slices"

	"gebr/internal/assemble"
	"gebr/internal/batch"
	"gebr/internal/job"
	"gebr/internal/logging"
	"gebr/internal/notify"
	"gebr/internal/process"
)

const (
	statusParamExitFailure = "Job exited with failure"
)

// transition changes the job status, tells clients and advances the queue
// when the job leaves the running slot. Repeating the current status does
// nothing.
func (s *Scheduler) transition(e *entry, target job.Status, parameter string) bool {
	j := e.job
	from := j.Status()
	changed, err := j.SetStatus(s.runCtx, target)
	if err != nil {
		s.jobLogger(j).Debug("status change rejected",
			logging.String("from", string(from)),
			logging.String("to", string(target)),
			logging.Error(err),
		)
		return false
	}
	if !changed {
		return false
	}
	s.observer.JobStatus(target)
	s.hub.Broadcast(notify.StatusMessage(j.ID, target.Token(), parameter, j.RunID))
	s.jobLogger(j).Info("job status changed",
		logging.String("from", string(from)),
		logging.String("to", string(target)),
		logging.Event("job_status_changed"),
	)

	if target.Terminal() {
		s.releaseRuntime(e)
		if next := s.queues.Release(e.queue, j); next != nil {
			s.start(s.jobs[next.ID])
		}
	}
	return true
}

func (s *Scheduler) addIssue(j *job.Job, issue string) {
	j.AddIssue(issue)
	if j.Status() != job.StatusInitial {
		s.hub.Broadcast(notify.StatusMessage(j.ID, string(job.NotifyIssued), issue, j.RunID))
	}
}

func (s *Scheduler) notifyRequeued(j *job.Job) {
	s.hub.Broadcast(notify.StatusMessage(j.ID, string(job.NotifyRequeued), j.Queue, j.RunID))
}

// jobMessage renders the record shown to a client. Showing a job moves it
// out of the initial state.
func (s *Scheduler) jobMessage(j *job.Job) notify.Message {
	if j.Status() == job.StatusInitial {
		if changed, _ := j.SetStatus(s.runCtx, job.StatusQueued); changed {
			s.observer.JobStatus(job.StatusQueued)
		}
	}
	return notify.JobMessage(j.Record())
}

func (s *Scheduler) broadcastJob(j *job.Job) {
	if s.hub.Count() == 0 {
		return
	}
	s.hub.Broadcast(s.jobMessage(j))
}

func (s *Scheduler) forget(id string) {
	delete(s.jobs, id)
	if idx := slices.Index(s.order, id); idx >= 0 {
		s.order = slices.Delete(s.order, idx, idx+1)
	}
}

func (s *Scheduler) releaseRuntime(e *entry) {
	if e.stopPoll != nil {
		e.stopPoll()
		e.stopPoll = nil
	}
	if e.tail != nil {
		if err := e.tail.Kill(); err != nil {
			s.jobLogger(e.job).Debug("tail kill failed", logging.Error(err))
		}
		e.tail = nil
	}
}

func (s *Scheduler) start(e *entry) {
	if s.useBatch {
		s.startBatch(e)
		return
	}
	s.startLocal(e)
}

func (s *Scheduler) startLocal(e *entry) {
	j := e.job
	id := j.ID
	j.MarkStarted()
	s.transition(e, job.StatusRunning, j.StartDate)

	cmd := process.Command{
		Args:       assemble.LoginShellArgs(j.CmdLine, j.Display),
		CloseStdin: !j.ReadsStdin,
	}
	proc, err := s.launcher.Launch(s.runCtx, cmd, func(evt process.Event) {
		s.post(func() { s.onProcessEvent(id, evt) })
	})
	if err != nil {
		logging.WarnWithContext(s.jobLogger(j), "process start failed", "process_start_failed",
			logging.Error(err),
			logging.Hint("check that bash is installed and the daemon can fork"),
			logging.Impact("job failed"),
		)
		s.addIssue(j, err.Error())
		s.transition(e, job.StatusFailed, statusParamExitFailure)
		return
	}
	e.proc = proc
	s.jobLogger(j).Debug("process launched",
		logging.Int("pid", proc.Pid()),
		logging.String("cmdline", j.CmdLine),
		logging.Event("job_process_launched"),
	)
}

func (s *Scheduler) onProcessEvent(id string, evt process.Event) {
	e, ok := s.jobs[id]
	if !ok {
		return
	}
	switch evt.Kind {
	case process.EventOutput:
		s.appendOutput(e.job, evt.Chunk)
	case process.EventExit:
		e.proc = nil
		j := e.job
		switch {
		case evt.ExitCode == 0 && evt.Err == nil:
			s.complete(e)
		case j.UserFinished:
			s.transition(e, job.StatusCanceled, j.FinishDate)
		default:
			s.jobLogger(j).Info("job process failed",
				logging.Int("exit_code", evt.ExitCode),
				logging.Bool("signaled", evt.Signaled),
				logging.Event("job_process_failed"),
			)
			s.transition(e, job.StatusFailed, statusParamExitFailure)
		}
	}
}

func (s *Scheduler) appendOutput(j *job.Job, chunk string) {
	if chunk == "" {
		return
	}
	j.AppendOutput(chunk)
	s.observer.OutputChunk(len(chunk))
	s.hub.Broadcast(notify.OutputMessage(j.ID, chunk, j.RunID))
}

// complete finishes a job that ended normally, or cancels it when the user
// asked it to stop.
func (s *Scheduler) complete(e *entry) {
	j := e.job
	target := job.StatusFinished
	if j.UserFinished {
		target = job.StatusCanceled
	}
	if j.Status() == target {
		return
	}
	if j.BatchID != 0 {
		s.releaseRuntime(e)
		rest, err := s.batch.ReadRemainder(j.BatchID, int64(j.OutputLen()))
		if err != nil {
			s.jobLogger(j).Debug("batch output file unreadable", logging.Error(err))
		}
		s.appendOutput(j, rest)
	}
	j.MarkFinished()
	s.transition(e, target, j.FinishDate)
}

func (s *Scheduler) startBatch(e *entry) {
	j := e.job
	s.transition(e, job.StatusQueued, "")

	id := j.ID
	cmdline, display, account, queueName := j.CmdLine, j.Display, j.Account, j.Queue
	ctx := jobContext(s.runCtx, j)
	s.goBackground(func() {
		batchID, err := s.batch.Submit(ctx, cmdline, display, account, queueName)
		s.post(func() { s.onSubmitted(id, batchID, err) })
	})
}

func (s *Scheduler) onSubmitted(id string, batchID uint64, err error) {
	e, ok := s.jobs[id]
	if !ok {
		return
	}
	j := e.job
	if err != nil {
		message := err.Error()
		var issueErr *batch.IssueError
		if errors.As(err, &issueErr) {
			message = issueErr.Issue
		}
		logging.WarnWithContext(s.jobLogger(j), "batch submission failed", "batch_submit_failed",
			logging.Error(err),
			logging.Hint("check the batch account, queue and submit tool"),
			logging.Impact("job failed"),
		)
		s.addIssue(j, message)
		s.transition(e, job.StatusFailed, message)
		return
	}
	j.BatchID = batchID
	if j.Status().Terminal() {
		return
	}

	tail, err := s.launcher.Launch(s.runCtx, s.batch.TailCommand(batchID), func(evt process.Event) {
		if evt.Kind == process.EventOutput {
			s.post(func() { s.onTailOutput(id, evt.Chunk) })
		}
	})
	if err != nil {
		s.jobLogger(j).Warn("batch output tail failed; output arrives on completion",
			logging.Error(err),
			logging.Event("batch_tail_failed"),
			logging.Hint("check the batch output directory"),
			logging.Impact("live output unavailable"),
		)
	} else {
		e.tail = tail
	}

	pollCtx, stop := context.WithCancel(s.runCtx)
	e.stopPoll = stop
	s.goBackground(func() {
		s.batch.Poll(pollCtx, batchID, func(status batch.Status, err error) {
			s.post(func() { s.onPoll(id, status, err) })
		})
	})

	if e.pendingSignal != "" {
		signal := e.pendingSignal
		e.pendingSignal = ""
		s.signalBatch(e, signal)
	}
}

func (s *Scheduler) onTailOutput(id, chunk string) {
	e, ok := s.jobs[id]
	if !ok || e.job.Status().Terminal() {
		return
	}
	s.appendOutput(e.job, chunk)
}

func (s *Scheduler) onPoll(id string, status batch.Status, err error) {
	e, ok := s.jobs[id]
	if !ok || e.job.Status().Terminal() {
		return
	}
	j := e.job
	decision := batch.Evaluate(status, err, j.Queue)
	if decision.Requeued != "" {
		j.Queue = decision.Requeued
		s.notifyRequeued(j)
	}
	if decision.Issue != "" {
		s.addIssue(j, decision.Issue)
	}
	switch decision.Outcome {
	case batch.OutcomeFailed:
		s.transition(e, job.StatusFailed, decision.Issue)
	case batch.OutcomeCompleted:
		s.complete(e)
	case batch.OutcomeRunning:
		if j.Status() != job.StatusRunning {
			j.MarkStarted()
			s.transition(e, job.StatusRunning, j.StartDate)
		}
	default:
		s.jobLogger(j).Warn("untreated batch state",
			logging.String("state", decision.State),
			logging.Uint64(logging.FieldBatchID, j.BatchID),
			logging.Event("batch_state_untreated"),
			logging.Hint("polling continues"),
			logging.Impact("none"),
		)
	}
}

// cancelPending drops a job that is still waiting in its registry queue. It
// reports false once the job has been handed to a runner.
func (s *Scheduler) cancelPending(e *entry) bool {
	j := e.job
	if j.Status() != job.StatusQueued || !s.queues.Remove(e.queue, j) {
		return false
	}
	j.MarkFinished()
	s.transition(e, job.StatusCanceled, j.FinishDate)
	s.forget(j.ID)
	return true
}

// stop handles end and kill requests.
func (s *Scheduler) stop(e *entry, force bool) {
	j := e.job
	if j.Status().Terminal() {
		return
	}
	if s.cancelPending(e) {
		return
	}
	if s.useBatch {
		signal := batch.SignalTerminate
		if force {
			signal = batch.SignalKill
		}
		// The active job is still being submitted; signal once it has an id.
		if j.BatchID == 0 {
			e.pendingSignal = signal
			return
		}
		s.signalBatch(e, signal)
		return
	}
	if e.proc == nil {
		return
	}
	j.UserFinished = true
	var err error
	if force {
		err = e.proc.Kill()
	} else {
		err = e.proc.Terminate()
	}
	if err != nil {
		logging.WarnWithContext(s.jobLogger(j), "signal delivery failed", "job_signal_failed",
			logging.Error(err),
			logging.Bool("force", force),
			logging.Hint("the process may already be gone"),
		)
	}
}

func (s *Scheduler) signalBatch(e *entry, signal string) {
	id := e.job.ID
	batchID := e.job.BatchID
	ctx := s.runCtx
	s.goBackground(func() {
		err := s.batch.Signal(ctx, batchID, signal)
		s.post(func() { s.onSignaled(id, err) })
	})
}

func (s *Scheduler) onSignaled(id string, err error) {
	e, ok := s.jobs[id]
	if !ok {
		return
	}
	j := e.job
	if err != nil {
		message := err.Error()
		var issueErr *batch.IssueError
		if errors.As(err, &issueErr) {
			message = issueErr.Issue
		}
		s.addIssue(j, message)
		return
	}
	j.UserFinished = true
}
