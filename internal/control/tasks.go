// internal/control/tasks.go
package control

import (
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loveourearth/JHS-EncoderReader/internal/gateway"
	"github.com/loveourearth/JHS-EncoderReader/internal/syserr"
)

const (
	// minInterval rejects polling rates the serial link cannot sustain.
	minInterval = 100 * time.Millisecond

	// stopWait bounds the confirmation wait for the shared poll loop;
	// stale entries are dropped regardless once it elapses.
	stopWait = time.Second
	stopStep = 50 * time.Millisecond

	maxListedIDs = 5
)

// MonitorControl is the slice of the encoder monitor the task manager
// drives.
type MonitorControl interface {
	StartMonitoring(interval time.Duration) error
	StopMonitoring() error
	Monitoring() bool
}

// MonitorTask is one client's live data feed. The encoder poll loop is
// shared; the task holds the per-client delivery state, including the
// de-duplication fingerprint.
type MonitorTask struct {
	ID        string
	ClientKey string
	Interval  time.Duration
	Format    gateway.Format
	StartedAt time.Time

	mu        sync.Mutex
	sent      bool
	lastAngle float64
	lastRPM   float64
	lastLaps  int64
	lastSent  time.Time
}

// ShouldSend records the sample fingerprint and decides whether it goes
// out: an unchanged (angle, rpm, laps) tuple is suppressed until half
// the task interval has elapsed since the last send.
func (t *MonitorTask) ShouldSend(angle, rpm float64, laps int64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	same := t.sent && t.lastAngle == angle && t.lastRPM == rpm && t.lastLaps == laps
	if same && now.Sub(t.lastSent) < t.Interval/2 {
		return false
	}

	t.sent = true
	t.lastAngle, t.lastRPM, t.lastLaps = angle, rpm, laps
	t.lastSent = now
	return true
}

func (t *MonitorTask) snapshot() MonitorTask {
	return MonitorTask{
		ID:        t.ID,
		ClientKey: t.ClientKey,
		Interval:  t.Interval,
		Format:    t.Format,
		StartedAt: t.StartedAt,
	}
}

// TaskManager owns the monitor-task table and enforces the one-task-
// per-client rule. Lifecycle operations serialize on opMu so a start
// can wait out a stopping poll loop without blocking sample delivery,
// which only touches the table lock.
type TaskManager struct {
	monitor MonitorControl

	opMu sync.Mutex

	mu       sync.Mutex
	tasks    map[string]*MonitorTask
	byClient map[string]string
}

func NewTaskManager(monitor MonitorControl) *TaskManager {
	return &TaskManager{
		monitor:  monitor,
		tasks:    make(map[string]*MonitorTask),
		byClient: make(map[string]string),
	}
}

// Start registers a task for the client, replacing any existing one.
// The old task is dropped and, when it was the last one, the shared
// poll loop is confirmed stopped before the new task is recorded.
func (tm *TaskManager) Start(clientKey string, interval time.Duration, format gateway.Format) (MonitorTask, error) {
	if interval < minInterval {
		return MonitorTask{}, syserr.New(syserr.KindConfig,
			"interval %s below the %s minimum", interval, minInterval)
	}

	tm.opMu.Lock()
	defer tm.opMu.Unlock()

	tm.mu.Lock()
	oldID, had := tm.byClient[clientKey]
	tm.mu.Unlock()
	if had {
		tm.drop(oldID)
		if tm.Count() == 0 {
			tm.haltPolling()
		}
	}

	if tm.Count() == 0 {
		if err := tm.monitor.StartMonitoring(interval); err != nil {
			return MonitorTask{}, err
		}
	}

	task := &MonitorTask{
		ID:        uuid.New().String(),
		ClientKey: clientKey,
		Interval:  interval,
		Format:    format,
		StartedAt: time.Now(),
	}
	tm.mu.Lock()
	tm.tasks[task.ID] = task
	tm.byClient[clientKey] = task.ID
	tm.mu.Unlock()

	return task.snapshot(), nil
}

// Stop removes one task by id, or every task when id is empty. An
// unknown id fails with the active ids listed for discoverability.
func (tm *TaskManager) Stop(taskID string) ([]MonitorTask, error) {
	tm.opMu.Lock()
	defer tm.opMu.Unlock()

	if taskID == "" {
		stopped := tm.dropAll()
		if tm.monitor.Monitoring() {
			tm.haltPolling()
		}
		return stopped, nil
	}

	tm.mu.Lock()
	task, ok := tm.tasks[taskID]
	tm.mu.Unlock()
	if !ok {
		ids := tm.activeIDs(maxListedIDs)
		if len(ids) == 0 {
			return nil, syserr.New(syserr.KindResource, "unknown task %q, no tasks are active", taskID)
		}
		return nil, syserr.New(syserr.KindResource, "unknown task %q, active: %s",
			taskID, strings.Join(ids, ", "))
	}

	snap := task.snapshot()
	tm.drop(taskID)
	if tm.Count() == 0 {
		tm.haltPolling()
	}
	return []MonitorTask{snap}, nil
}

// Drop removes a task entry without touching the poll loop. Used from
// the sample path to shed tasks whose client session vanished; the
// loop, if orphaned, is stopped from a separate goroutine.
func (tm *TaskManager) Drop(taskID string) {
	tm.drop(taskID)
	if tm.Count() == 0 && tm.monitor.Monitoring() {
		go func() {
			if _, err := tm.Stop(""); err != nil {
				log.Printf("control: stopping orphaned poll loop: %v", err)
			}
		}()
	}
}

// Active returns snapshots of the live tasks.
func (tm *TaskManager) Active() []MonitorTask {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	out := make([]MonitorTask, 0, len(tm.tasks))
	for _, t := range tm.tasks {
		out = append(out, t.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Tasks returns the live task handles for sample delivery.
func (tm *TaskManager) Tasks() []*MonitorTask {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	out := make([]*MonitorTask, 0, len(tm.tasks))
	for _, t := range tm.tasks {
		out = append(out, t)
	}
	return out
}

// Count returns the number of live tasks.
func (tm *TaskManager) Count() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.tasks)
}

func (tm *TaskManager) drop(taskID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return
	}
	delete(tm.tasks, taskID)
	if tm.byClient[task.ClientKey] == taskID {
		delete(tm.byClient, task.ClientKey)
	}
}

func (tm *TaskManager) dropAll() []MonitorTask {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	out := make([]MonitorTask, 0, len(tm.tasks))
	for id, t := range tm.tasks {
		out = append(out, t.snapshot())
		delete(tm.tasks, id)
	}
	tm.byClient = make(map[string]string)
	return out
}

func (tm *TaskManager) activeIDs(limit int) []string {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	ids := make([]string, 0, len(tm.tasks))
	for id := range tm.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// haltPolling stops the shared poll loop and waits, bounded, until it
// reports stopped.
func (tm *TaskManager) haltPolling() {
	if err := tm.monitor.StopMonitoring(); err != nil {
		log.Printf("control: stop monitoring: %v", err)
	}
	deadline := time.Now().Add(stopWait)
	for tm.monitor.Monitoring() && time.Now().Before(deadline) {
		time.Sleep(stopStep)
	}
	if tm.monitor.Monitoring() {
		log.Printf("control: poll loop still running after %s", stopWait)
	}
}
